package handler

// ユーザー向けのフラッシュメッセージ。
const (
	MsgNoFile           = "No file selected"
	MsgInvalidType      = "Invalid file type. Please upload PNG, JPG, JPEG, or WEBP images only."
	MsgInvalidImage     = "Invalid image file. Please upload a valid image."
	MsgProcessing       = "Error processing image. Please try again."
	MsgUploadFailed     = "Upload failed. Please try again."
	MsgTooLarge         = "File is too large. Maximum size is 16MB."
	MsgNotFound         = "Detection not found"
	MsgResultError      = "Error loading result"
	MsgHistoryError     = "Error loading history"
	MsgInternal         = "An internal error occurred. Please try again."
	MsgRateLimited      = "Too many uploads. Please wait a moment and try again."
	MsgModelUnavailable = "The detection model is not available right now. Please try again later."
)

// フラッシュメッセージのカテゴリ。
const (
	categoryError = "error"
)
