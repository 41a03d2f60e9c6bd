package errors

// Reason is a stable machine-readable cause attached to refusals so that
// clients can branch on it independently of the human-facing message.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonProblemNotFound     Reason = "problemNotFound"
	ReasonProblemDeprecated   Reason = "problemDeprecated"
	ReasonProblemsetNotFound  Reason = "problemsetNotFound"
	ReasonRunNotFound         Reason = "runNotFound"
	ReasonIncompatibleArgs    Reason = "incompatibleArgs"
	ReasonParameterNotFound   Reason = "parameterNotFound"
	ReasonParameterInvalid    Reason = "parameterInvalid"
	ReasonProblemIsNotPublic  Reason = "problemIsNotPublic"
	ReasonRunWaitGap          Reason = "runWaitGap"
	ReasonRunNotInsideContest Reason = "runNotInsideContest"
	ReasonRunNotEvenOpened    Reason = "runNotEvenOpened"
	ReasonUserNotAllowed      Reason = "userNotAllowed"
	ReasonLockdown            Reason = "lockdown"
	ReasonGraderUnavailable   Reason = "graderUnavailable"
)

// GetReason extracts the refusal reason from any error in the chain.
func GetReason(err error) Reason {
	if e := asError(err); e != nil {
		return e.Reason
	}
	return ReasonNone
}
