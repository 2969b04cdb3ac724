package handlers

import (
	"errors"
	"io"
	"net/http"

	"imageprompt/internal/domain"
	"imageprompt/internal/i18n"
	"imageprompt/internal/middleware"
)

const multipartMemory = 8 << 20

// ImageToPrompt accepts multipart fields file, promptType and userQuery,
// forwards them to the provider and answers {fileId, workflow}.
func (a *App) ImageToPrompt(w http.ResponseWriter, r *http.Request) {
	if a.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, r, http.StatusRequestEntityTooLarge, domain.ErrFileTooLarge.Error(), nil, i18n.MsgFileTooLarge)
			return
		}
		a.logger(r).Error().Err(err).Msg("failed to parse multipart body")
		a.error(w, r, http.StatusInternalServerError, err.Error(), nil, i18n.MsgRequestFailed)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			a.error(w, r, http.StatusBadRequest, domain.ErrNoFile.Error(), nil, i18n.MsgNoFile)
			return
		}
		a.error(w, r, http.StatusInternalServerError, err.Error(), nil, i18n.MsgRequestFailed)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		a.error(w, r, http.StatusInternalServerError, err.Error(), nil, i18n.MsgRequestFailed)
		return
	}

	promptType, err := domain.ParsePromptType(r.FormValue("promptType"))
	if err != nil {
		a.error(w, r, http.StatusBadRequest, err.Error(), nil, i18n.MsgInvalidPromptType)
		return
	}

	submission, err := a.Submitter.Submit(r.Context(), domain.SubmissionRequest{
		Image:      data,
		Filename:   header.Filename,
		MediaType:  header.Header.Get("Content-Type"),
		PromptType: promptType,
		UserQuery:  r.FormValue("userQuery"),
		Locale:     middleware.LocaleFromContext(r.Context()),
	})
	if err != nil {
		a.submissionError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, submission)
}

func (a *App) submissionError(w http.ResponseWriter, r *http.Request, err error) {
	serr, ok := domain.AsSubmissionError(err)
	if !ok {
		serr = domain.RequestError(err)
	}
	switch serr.Kind {
	case domain.KindValidation:
		key := i18n.MsgRequestFailed
		switch {
		case errors.Is(serr, domain.ErrNoFile):
			key = i18n.MsgNoFile
		case errors.Is(serr, domain.ErrInvalidPromptType):
			key = i18n.MsgInvalidPromptType
		}
		a.error(w, r, http.StatusBadRequest, serr.Message, nil, key)
	case domain.KindUploadFailed:
		detail := serr.ProviderBody
		a.error(w, r, http.StatusBadGateway, serr.Message, &detail, i18n.MsgUploadFailed)
	case domain.KindWorkflowFailed:
		detail := serr.ProviderBody
		a.error(w, r, http.StatusBadGateway, serr.Message, &detail, i18n.MsgWorkflowFailed)
	default:
		a.error(w, r, http.StatusInternalServerError, serr.Message, nil, i18n.MsgRequestFailed)
	}
}
