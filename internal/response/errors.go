package response

// ErrCode identifies an API or WebSocket error for clients.
type ErrCode string

const (
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	ErrContestNotFound  ErrCode = "CONTEST_NOT_FOUND"
	ErrSessionCompleted ErrCode = "SESSION_COMPLETED"
	ErrDeviceRestricted ErrCode = "DEVICE_RESTRICTED"
	ErrSessionReplaced  ErrCode = "SESSION_REPLACED"
	ErrUnknownAction    ErrCode = "UNKNOWN_ACTION"

	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// Messages are shown to students as-is, hence Indonesian.
var messages = map[ErrCode]string{
	ErrTokenRequired: "Token autentikasi diperlukan.",
	ErrTokenInvalid:  "Token autentikasi tidak valid.",
	ErrTokenExpired:  "Token autentikasi telah kedaluwarsa.",

	ErrStudentAccessOnly: "Sumber daya ini terbatas untuk siswa.",
	ErrAdminAccessOnly:   "Sumber daya ini terbatas untuk administrator.",

	ErrValidation:     "Validasi gagal. Silakan periksa masukan Anda.",
	ErrInvalidID:      "Format ID tidak valid.",
	ErrInvalidPayload: "Payload permintaan tidak valid.",

	ErrContestNotFound:  "Ujian tidak ditemukan.",
	ErrSessionCompleted: "Anda sudah menyelesaikan ujian ini.",
	ErrDeviceRestricted: "Ujian ini tidak dapat dikerjakan dari perangkat ini.",
	ErrSessionReplaced:  "Ujian dibuka di tab atau perangkat lain.",
	ErrUnknownAction:    "Aksi tidak dikenal.",

	ErrRateLimitExceeded: "Terlalu banyak permintaan. Silakan coba lagi nanti.",

	ErrInternal: "Terjadi kesalahan server internal.",
}

// GetMessage returns the user-facing message for a code.
func GetMessage(code ErrCode) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return "Terjadi kesalahan yang tidak terduga."
}
