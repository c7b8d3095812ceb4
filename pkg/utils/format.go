package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"driverecover/internal/logging"
	"driverecover/internal/models"
)

func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func PrintJSON(data interface{}) error {
	return WriteJSON(os.Stdout, data)
}

// WriteJSON writes data as indented JSON followed by a newline.
func WriteJSON(w io.Writer, data interface{}) error {
	jsonOutput, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(jsonOutput))
	return err
}

func PrintError(err error, command string) {
	errorResp := models.ErrorResponse{
		Error:     err.Error(),
		Timestamp: time.Now().Format(time.RFC3339),
		Command:   command,
	}
	err = PrintJSON(errorResp)
	if err != nil {
		logging.L().Error("Failed to print error in JSON format", zap.Error(err))
		fmt.Println("Error: ", errorResp)
		return
	}
}

func FormatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}
