package models

type TOTPVerifySetupRequest struct {
	Code string `json:"code" binding:"required"`
	// Format "pdf" returns the recovery codes as a printable sheet instead
	// of JSON. Either way they are shown exactly once.
	Format string `json:"format,omitempty"`
}

type TOTPValidateRequest struct {
	TempToken string `json:"temp_token" binding:"required"`
	// Code is either a 6-digit authenticator code or a recovery code.
	Code string `json:"code" binding:"required"`
}

type TOTPDisableRequest struct {
	Password string `json:"password" binding:"required"`
}
