// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"

	// 运行相关错误
	ErrorRunNotStarted   = "RUN_NOT_STARTED"
	ErrorRunInvalidState = "RUN_INVALID_STATE"
	ErrorRunSubmitFailed = "RUN_SUBMIT_FAILED"
	ErrorRunListFailed   = "RUN_LIST_FAILED"

	// 角色相关错误
	ErrorCharacterNotFound = "CHARACTER_NOT_FOUND"
	ErrorNoImageToEdit     = "NO_IMAGE_TO_EDIT"
	ErrorNoVoiceActor      = "NO_VOICE_ACTOR"

	// 场景相关错误
	ErrorSceneNotFound = "SCENE_NOT_FOUND"

	// 建议相关错误
	ErrorSuggestionNotFound = "SUGGESTION_NOT_FOUND"

	// 渲染相关错误
	ErrorRenderNotRunning = "RENDER_NOT_RUNNING"

	// LLM服务相关错误
	ErrorLLMServiceUnavailable = "LLM_SERVICE_UNAVAILABLE"
	ErrorLLMConfigInvalid      = "LLM_CONFIG_INVALID"
)
