package stomp

import (
	"strconv"
	"strings"
)

// ProtocolVersion is the version announced in CONNECTED frames.
const ProtocolVersion = "1.2"

// Connected creates a CONNECTED frame. session may be empty.
func Connected(session string) Frame {
	headers := NewHeaders(HeaderVersion, ProtocolVersion)
	if session != "" {
		headers = headers.With(HeaderSession, session)
	}
	return Frame{Command: CONNECTED, Headers: headers}
}

// Receipt creates a RECEIPT frame acknowledging receiptID.
func Receipt(receiptID string) Frame {
	return Frame{
		Command: RECEIPT,
		Headers: NewHeaders(HeaderReceiptID, receiptID),
	}
}

// Message derives the MESSAGE frame delivered to one subscriber from a SEND
// frame. The SEND headers are copied except receipt, which only concerns
// the publisher.
func Message(source Frame, destination, subscription string, messageID uint64) Frame {
	headers := source.Headers.Without(HeaderReceipt)
	headers = headers.With(HeaderDestination, destination)
	headers = headers.With(HeaderSubscription, subscription)
	headers = headers.With(HeaderMessageID, strconv.FormatUint(messageID, 10))
	return Frame{
		Command: MESSAGE,
		Headers: headers,
		Body:    source.Body,
	}
}

// Error creates an ERROR frame describing a problem with cause.
//
// message becomes the message header. If cause asked for a receipt its id is
// echoed as receipt-id. The body repeats the message and, when cause is not
// empty, the offending frame between rulers.
func Error(message string, cause Frame) Frame {
	headers := NewHeaders(HeaderMessage, message)
	if receipt, ok := cause.Lookup(HeaderReceipt); ok {
		headers = headers.With(HeaderReceiptID, receipt)
	}

	body := &strings.Builder{}
	body.WriteString("The error message: ")
	body.WriteString(message)
	if !cause.Empty() {
		body.WriteString("\n\nOriginal frame:\n---\n")
		// The terminator would end the ERROR frame early.
		body.WriteString(strings.TrimSuffix(cause.String(), string(rune(Terminator))))
		body.WriteString("\n---")
	}

	return Frame{
		Command: ERROR,
		Headers: headers,
		Body:    body.String(),
	}
}
