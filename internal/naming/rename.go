package naming

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/John-Robertt/submerge-go/internal/model"
)

type RenameError struct {
	AppError model.AppError
	Cause    error
}

func (e *RenameError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *RenameError) Unwrap() error { return e.Cause }

// ParseNames splits a newline separated name list, trimming each line and
// dropping blank ones.
func ParseNames(text string) []string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// Rename gives entries[i] the name names[i mod len(names)]. Names may repeat
// when there are more entries than names; uniqueness is not re-enforced.
func Rename(entries []model.Entry, names []string) ([]model.Entry, error) {
	if len(names) == 0 {
		return nil, &RenameError{
			AppError: model.AppError{
				Code:    "EMPTY_NAME_LIST",
				Message: "没有提供任何新名称",
				Stage:   "rename",
				Hint:    "one name per line",
			},
		}
	}
	out := make([]model.Entry, len(entries))
	for i, e := range entries {
		out[i] = e.WithName(names[i%len(names)])
	}
	return out, nil
}

// Ordinal names entries prefix1, prefix2, ... in input order.
func Ordinal(entries []model.Entry, prefix string) []model.Entry {
	out := make([]model.Entry, len(entries))
	for i, e := range entries {
		out[i] = e.WithName(prefix + strconv.Itoa(i+1))
	}
	return out
}
