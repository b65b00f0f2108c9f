package errormsg

import "fmt"

// ThreadlessErrorMessage is a display-only notice for failures that happen before any
// thread can be resolved. It has no identity and is never stored.
type ThreadlessErrorMessage struct {
	errorType ErrorType
}

// CorruptedMessageInUnknownThread is the notice shown for an envelope too damaged to name its sender.
func CorruptedMessageInUnknownThread() ThreadlessErrorMessage {
	return ThreadlessErrorMessage{errorType: ErrorTypeInvalidMessage}
}

// PreviewText returns the notice as one line of text.
func (m ThreadlessErrorMessage) PreviewText() string {
	return previewText(m.errorType, "", false)
}

// PreviewText returns the notice as one line of text, naming the other party when known.
func (m *ErrorMessage) PreviewText() string {
	party := ""
	switch {
	case m.recipientAddress != nil:
		party = m.recipientAddress.String()
	case m.sender != nil:
		party = m.sender.String()
	}
	return previewText(m.errorType, party, m.WasIdentityVerified())
}

func previewText(errorType ErrorType, party string, wasVerified bool) string {
	if party == "" {
		party = "this contact"
	}

	switch errorType {
	case ErrorTypeNoSession:
		return fmt.Sprintf("Couldn't decrypt a message from %s. There is no secure session yet.", party)
	case ErrorTypeWrongTrustedIdentityKey:
		return fmt.Sprintf("Your safety number with %s has changed.", party)
	case ErrorTypeInvalidKeyException:
		return fmt.Sprintf("Received a message from %s with an invalid key.", party)
	case ErrorTypeMissingKeyID:
		return "Received a message with an unknown key."
	case ErrorTypeInvalidMessage:
		return "Received a corrupted message."
	case ErrorTypeDuplicateMessage:
		return "Received a duplicate message."
	case ErrorTypeInvalidVersion:
		return fmt.Sprintf("Received a message from %s that is not compatible with this version.", party)
	case ErrorTypeNonBlockingIdentityChange:
		if wasVerified {
			return fmt.Sprintf("Your safety number with %s has changed and is no longer verified.", party)
		}
		return fmt.Sprintf("Your safety number with %s has changed.", party)
	case ErrorTypeUnknownContactBlockOffer:
		return "You were added by someone who is not in your contacts."
	case ErrorTypeGroupCreationFailed:
		return "The group could not be created."
	case ErrorTypeSessionRefresh:
		return fmt.Sprintf("The chat session with %s was refreshed.", party)
	case ErrorTypeDecryptionFailure:
		return fmt.Sprintf("A message from %s could not be delivered.", party)
	default:
		return "Something went wrong with this message."
	}
}
