package smtpserver

import (
	"github.com/emersion/go-smtp"
)

// SMTP replies for policy and processing failures. Transient (4xx) codes ask
// the sending MTA to retry; permanent (5xx) codes make it bounce.
var (
	errSMTPRateLimited = &smtp.SMTPError{
		Code:         451,
		EnhancedCode: smtp.EnhancedCode{4, 7, 0},
		Message:      "Rate limit exceeded, try again later",
	}
	errSMTPDomainNotAllowed = &smtp.SMTPError{
		Code:         550,
		EnhancedCode: smtp.EnhancedCode{5, 7, 1},
		Message:      "Relay not permitted for recipient domain",
	}
	errSMTPTooManyRecipients = &smtp.SMTPError{
		Code:         451,
		EnhancedCode: smtp.EnhancedCode{4, 5, 3},
		Message:      "Too many recipients",
	}
	errSMTPMessageTooLarge = &smtp.SMTPError{
		Code:         552,
		EnhancedCode: smtp.EnhancedCode{5, 3, 4},
		Message:      "Message size exceeds maximum",
	}
	errSMTPUnparseable = &smtp.SMTPError{
		Code:         554,
		EnhancedCode: smtp.EnhancedCode{5, 6, 0},
		Message:      "Message content rejected",
	}
	errSMTPForwardTransient = &smtp.SMTPError{
		Code:         451,
		EnhancedCode: smtp.EnhancedCode{4, 4, 4},
		Message:      "Temporary delivery failure, try again later",
	}
	errSMTPForwardPermanent = &smtp.SMTPError{
		Code:         550,
		EnhancedCode: smtp.EnhancedCode{5, 1, 1},
		Message:      "Recipient mailbox unavailable",
	}
	errSMTPBadSender = &smtp.SMTPError{
		Code:         501,
		EnhancedCode: smtp.EnhancedCode{5, 1, 7},
		Message:      "Invalid sender address",
	}
)
