package server

import (
	"errors"
	"net/http"
	"net/url"

	"postboard/internal/avatar"
)

const (
	homePath = "/home"

	noticeAvatarFetchFailed = "avatar_fetch_failed"
)

// notices maps the error query parameter to user-visible text.
// Unknown codes render nothing.
var notices = map[string]string{
	noticeAvatarFetchFailed: "The avatar image could not be downloaded, so the post was not published.",
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, homePath, http.StatusFound)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	posts, err := s.store.ListPosts(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	notice := notices[r.URL.Query().Get("error")]
	body, err := s.renderer.Render(posts, notice)
	if err != nil {
		s.writeServiceError(w, r, internalError(err))
		return
	}

	s.writeHTML(w, http.StatusOK, body)
}

func (s *Server) handleSubmitPost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.forms.MaxUploadBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		s.writeServiceError(w, r, malformedForm(err))
		return
	}

	form, err := parseSubmissionForm(mr, s.forms.MaxFieldBytes, s.log())
	if err != nil {
		s.writeServiceError(w, r, malformedForm(err))
		return
	}
	if form == nil {
		http.Redirect(w, r, homePath, http.StatusSeeOther)
		return
	}

	if _, err := s.submissions.Submit(r.Context(), form); err != nil {
		var fetchErr *avatar.FetchError
		if errors.As(err, &fetchErr) {
			s.log().Warn("avatar fetch failed",
				"kind", fetchErr.Kind,
				"url", fetchErr.URL,
				"status", fetchErr.Status,
				"error_code", ErrCodeAvatarFetchFailed,
				"request_id", requestIDFrom(r.Context()),
				"error", fetchErr.Err,
			)
			http.Redirect(w, r, homePath+"?"+url.Values{"error": {noticeAvatarFetchFailed}}.Encode(), http.StatusSeeOther)
			return
		}
		s.writeServiceError(w, r, err)
		return
	}

	http.Redirect(w, r, homePath, http.StatusSeeOther)
}
