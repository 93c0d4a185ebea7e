package model

// ClientInfo is what the student client reports about its device before a
// session starts.
type ClientInfo struct {
	UserAgent     string `json:"user_agent" binding:"required,max=512"`
	ViewportWidth int    `json:"viewport_width" binding:"min=0,max=16384"`
	TouchPrimary  bool   `json:"touch_primary"`
}

// PrecheckResponse tells the client whether it may start the session.
type PrecheckResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}
