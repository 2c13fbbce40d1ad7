package event

// PaymentNewPayload carries a plugin's observed incoming payment into
// entryPointForPlugin.
type PaymentNewPayload struct {
	PluginName        string
	ID                string
	Amount            string
	Currency          string
	Denomination      string
	Memo              string
	RawData           []byte
	IsPersonalPayment bool
	ClientOrderID     string
}

// PaymentUpdatePayload carries an outgoing-payment plugin callback
// into entryPointForPlugin / PaymentSender.StateUpdateCallback.
type PaymentUpdatePayload struct {
	PluginName  string
	OrderID     string
	PaymentID   string
	PluginState string
	Data        any
}

type PaymentOrderCompletedPayload struct {
	OrderID string
}

// ReadyToReceivePayload carries a plugin-provisioned payment file body
// destined for PaymentManager.CreatePaymentFile.
type ReadyToReceivePayload struct {
	ID                 string
	PluginName         string
	Data               []byte
	AmountWasSpecified bool
	ClientOrderID      string
}

// UserNotificationPayload is handed to entryPointForUser-style
// consumers for anything not covered by the typed payloads above.
type UserNotificationPayload struct {
	Reason  string
	Payment any
}
