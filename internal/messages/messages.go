// Package messages holds every user-facing string in one place so
// deployments can override the wording through configuration.
package messages

// Messages is the full set of service texts sent to respondents and the
// operator channel.
type Messages struct {
	StartNewSession     string `mapstructure:"start_new_session"`
	ContinueSession     string `mapstructure:"continue_session"`
	RestartSession      string `mapstructure:"restart_session"`
	FirstQuestionEdit   string `mapstructure:"first_question_edit"`
	ServiceError        string `mapstructure:"service_error"`
	SessionRestarted    string `mapstructure:"session_restarted"`
	Help                string `mapstructure:"help"`
	SurveyComplete      string `mapstructure:"survey_complete"`
	OperatorComplete    string `mapstructure:"operator_complete"`
	OperatorReportError string `mapstructure:"operator_report_error"`
}

// Default returns the built-in texts.
func Default() Messages {
	return Messages{
		StartNewSession:   "Great, let's start!",
		ContinueSession:   "Ok, let's continue!",
		RestartSession:    "Ok, let's start from the beginning!",
		FirstQuestionEdit: "This is the first question",
		ServiceError: "Something went wrong.\n\n" +
			"Please use the restart command to start from the beginning.\n\n" +
			"If the problem persists, please contact support.",
		SessionRestarted: "Sorry for the inconvenience, we need to restart your session.",
		Help: "We will create an effective training plan based on your goals.\n\n" +
			"Use the start command to begin.\n\n" +
			"Use the restart command to start from the beginning.\n\n" +
			"If you made a mistake you can use the back command to fix your last reply.",
		SurveyComplete: "Thank you for your answers!\n\n" +
			"Our coach will reach out to you with the results.",
		OperatorComplete:    "completed the survey",
		OperatorReportError: "Failed to deliver the completion report",
	}
}
