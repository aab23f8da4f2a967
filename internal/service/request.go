package service

// RequestMeta is the caller context captured at the transport edge and
// passed explicitly into every operation that audits.
type RequestMeta struct {
	IP        string
	UserAgent string
}
