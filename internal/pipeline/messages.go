package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// Status texts pushed through the Notifier while a job runs.
const (
	MsgSubmitting     = "🎥 Sending generation request to Gemini..."
	MsgGenerationDone = "✅ Generation finished. Preparing download..."
	MsgDownloading    = "⬇️ Downloading video..."
	MsgUploading      = "📤 Uploading video..."
	MsgSucceeded      = "✅ Video sent successfully!"
)

// generatingText renders the poll-stage status line.
func generatingText(elapsed time.Duration, pct int) string {
	return fmt.Sprintf("🎥 Generating video...\n\n⏳ Elapsed: %ds\n🔄 Progress: %d%%",
		int(elapsed.Seconds()), pct)
}

// uploadingText renders the upload-stage status line.
func uploadingText(sent, total int64, elapsed time.Duration) string {
	pct := 0
	if total > 0 {
		pct = int(sent * 100 / total)
	}
	return fmt.Sprintf("📤 Uploading video... %d%% (%.1f/%.1f MB, %ds)",
		pct, float64(sent)/(1<<20), float64(total)/(1<<20), int(elapsed.Seconds()))
}

// UserMessage maps an error to the stable text shown to the user for its kind.
// A nil error renders the success message.
func UserMessage(err error) string {
	if err == nil {
		return MsgSucceeded
	}
	var pe *Error
	if !errors.As(err, &pe) {
		return "❌ Error during generation: " + err.Error()
	}
	switch pe.Kind {
	case KindInvalidInput:
		return "❌ Invalid request: " + pe.Detail()
	case KindAuth:
		return "❌ Invalid API key. Please /setkey again.\n" + pe.Detail()
	case KindQuota:
		return "⛔ API limit reached. Try later or enable billing."
	case KindMalformedResponse:
		return "❌ Could not find a video in the generation response: " + pe.Detail()
	case KindDownloadFailed:
		return "⚠️ Failed to download video: " + pe.Detail()
	case KindUploadFailed:
		return "❌ Failed to upload video: " + pe.Detail()
	case KindCancelled:
		return "🛑 Generation cancelled."
	case KindAlreadyRunning:
		return "⚠️ A generation task is already running. Use /cancel to stop it."
	case KindNoActiveJob:
		return "ℹ️ No active generation to cancel."
	default:
		return "❌ Error during generation: " + pe.Detail()
	}
}
