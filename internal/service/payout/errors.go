// internal/service/payout/errors.go
package payout

import "fmt"

// Step names one stage of the payout chain, recorded on failure so an
// operator can resume from the right place instead of replaying the whole
// chain.
type Step string

const (
	StepPartnerAuth         Step = "partner_auth"
	StepAccountVerification Step = "account_verification"
	StepTransferStandby     Step = "transfer_standby"
	StepTransferExecution   Step = "transfer_execution"
)

// PartnerAuthError is a failed partner authentication (step 1-2).
type PartnerAuthError struct {
	Message string
}

func (e *PartnerAuthError) Error() string {
	return fmt.Sprintf("partner auth failed: %s", e.Message)
}

// AccountVerificationError is a failed payee account verification or a
// verification answer without a billing key (step 3-4).
type AccountVerificationError struct {
	Message string
}

func (e *AccountVerificationError) Error() string {
	return fmt.Sprintf("account verification failed: %s", e.Message)
}

// TransferError is a failed transfer standby or execution (step 5-7).
type TransferError struct {
	Step    Step
	Message string
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed at %s: %s", e.Step, e.Message)
}

func stepOf(err error) Step {
	switch e := err.(type) {
	case *PartnerAuthError:
		return StepPartnerAuth
	case *AccountVerificationError:
		return StepAccountVerification
	case *TransferError:
		return e.Step
	default:
		return ""
	}
}
