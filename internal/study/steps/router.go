package steps

import (
	"fmt"
	"net/url"
	"strings"
)

const basePath = "/study/"

// StepToPath returns the canonical client route for step.
func StepToPath(accessCode string, step Step) (string, error) {
	code := strings.TrimSpace(accessCode)
	if code == "" {
		return "", fmt.Errorf("access code is required")
	}
	base := basePath + url.PathEscape(code)
	switch step {
	case Welcome:
		return base + "/welcome", nil
	case PreSurvey:
		return base + "/pre-survey", nil
	case FinalSurvey:
		return base + "/final-survey", nil
	case Done:
		return base + "/done", nil
	}
	if n, ok := step.TaskNumber(); ok {
		if step.IsChat() {
			return fmt.Sprintf("%s/task/%d", base, n), nil
		}
		return fmt.Sprintf("%s/task/%d/post-survey", base, n), nil
	}
	return "", fmt.Errorf("unknown step %q", step)
}

// EndedPath is where withdrawn and invalidated participants land.
func EndedPath(accessCode string) string {
	return basePath + url.PathEscape(strings.TrimSpace(accessCode)) + "/ended"
}

// Resolve validates st and returns the route the participant belongs on.
func Resolve(accessCode string, st State) (string, error) {
	if err := st.Validate(); err != nil {
		return "", err
	}
	if st.Status.Inactive() {
		return EndedPath(accessCode), nil
	}
	return StepToPath(accessCode, st.Step)
}
