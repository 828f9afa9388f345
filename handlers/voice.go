package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"tailortalk/models"
	"tailortalk/services/speech"
	"tailortalk/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const allowedAudioExtension = ".wav"

// VoiceTurnResult is a turn result plus what was heard.
type VoiceTurnResult struct {
	Transcript string `json:"transcript"`
	*models.TurnResult
}

// VoiceTurnHandler transcribes an uploaded WAV clip and feeds the text to the
// conversation as an ordinary turn.
func (h *ChatHandler) VoiceTurnHandler(t speech.Transcriber) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := getLogger(c)
		if t == nil {
			utils.JSONError(c, http.StatusServiceUnavailable, "Voice input is not enabled", "")
			return
		}

		file, header, err := c.Request.FormFile("audio")
		if err != nil {
			utils.JSONError(c, http.StatusBadRequest, "audio file is required", err.Error())
			return
		}
		defer file.Close()

		if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != allowedAudioExtension {
			utils.JSONError(c, http.StatusBadRequest, "invalid file type",
				fmt.Sprintf("expected %s, got %s", allowedAudioExtension, ext))
			return
		}

		data, err := io.ReadAll(io.LimitReader(file, speech.MaxAudioSize+1))
		if err != nil {
			utils.JSONError(c, http.StatusBadRequest, "failed to read audio file", err.Error())
			return
		}

		clip, err := speech.Prepare(c.Request.Context(), data)
		if err != nil {
			utils.JSONError(c, http.StatusBadRequest, "audio could not be processed", err.Error())
			return
		}

		text, err := t.Transcribe(c.Request.Context(), clip, c.PostForm("language"))
		if errors.Is(err, speech.ErrNoSpeech) {
			utils.JSONError(c, http.StatusUnprocessableEntity, "I couldn't hear anything in that recording. Could you try again?", "")
			return
		}
		if err != nil {
			logger.Error("Voice transcription failed", zap.Error(err))
			utils.JSONError(c, http.StatusBadGateway, "speech recognition failed", "")
			return
		}

		res, err := h.Service.HandleTurn(c.Request.Context(), c.Param("id"), text)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, VoiceTurnResult{Transcript: text, TurnResult: res})
	}
}
