package app

import (
	"errors"

	"github.com/John-Robertt/submerge-go/internal/config"
	"github.com/John-Robertt/submerge-go/internal/encode"
	"github.com/John-Robertt/submerge-go/internal/fetch"
	"github.com/John-Robertt/submerge-go/internal/model"
	"github.com/John-Robertt/submerge-go/internal/naming"
	"github.com/John-Robertt/submerge-go/internal/output"
	"github.com/John-Robertt/submerge-go/internal/pipeline"
	"github.com/John-Robertt/submerge-go/internal/render"
	"github.com/John-Robertt/submerge-go/internal/sub"
)

// ErrorMessage is the one-line text printed after "ERROR: ". URLs lose
// their query and userinfo; job logs are often public.
func ErrorMessage(err error) string {
	app, ok := appErrorOf(err)
	if !ok {
		return err.Error()
	}
	msg := app.Message
	if app.URL != "" {
		msg += " (" + fetch.RedactURL(app.URL) + ")"
	}
	if app.Hint != "" {
		msg += "; " + app.Hint
	}
	return msg
}

func appErrorOf(err error) (model.AppError, bool) {
	var (
		ce *config.Error
		pe *pipeline.Error
		fe *fetch.FetchError
		se *sub.ParseError
		de *encode.DecodeError
		ne *naming.RenameError
		re *render.RenderError
		we *output.WriteError
	)
	switch {
	case errors.As(err, &ce):
		return ce.AppError, true
	case errors.As(err, &pe):
		return pe.AppError, true
	case errors.As(err, &fe):
		return fe.AppError, true
	case errors.As(err, &se):
		return se.AppError, true
	case errors.As(err, &de):
		return de.AppError, true
	case errors.As(err, &ne):
		return ne.AppError, true
	case errors.As(err, &re):
		return re.AppError, true
	case errors.As(err, &we):
		return we.AppError, true
	default:
		return model.AppError{}, false
	}
}
