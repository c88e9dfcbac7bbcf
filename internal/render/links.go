package render

import (
	"strings"

	"github.com/John-Robertt/submerge-go/internal/convert"
	"github.com/John-Robertt/submerge-go/internal/model"
)

func renderLinks(entries []model.Entry) (string, Stats, error) {
	var st Stats
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		line, ok := convert.FormatLink(e)
		if !ok {
			st.Skipped++
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), st, nil
}
