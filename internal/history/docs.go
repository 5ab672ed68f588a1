package history

import (
	"sort"

	"tickerlab/internal/engine"
)

// Storage document shapes shared by both backends: bson tags for the
// durable store, json tags for the local blob. No field carries omitempty —
// the durable backend rejects absent values, so every optional is written
// as its explicit empty form.

type sessionDoc struct {
	SessionID    string            `bson:"session_id" json:"id"`
	SubjectLabel string            `bson:"subject_label" json:"subject_label"`
	UpdatedAt    int64             `bson:"updated_at" json:"updated_at"`
	TotalTokens  int               `bson:"total_tokens" json:"total_tokens"`
	Verdict      string            `bson:"verdict" json:"verdict"`
	Summary      string            `bson:"summary" json:"summary"`
	Engines      map[string]runDoc `bson:"engines" json:"engines"`
}

type runDoc struct {
	Status           string      `bson:"status" json:"status"`
	ResultText       string      `bson:"result_text" json:"result_text"`
	ErrorMessage     string      `bson:"error_message" json:"error_message"`
	PromptTokens     int         `bson:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int         `bson:"completion_tokens" json:"completion_tokens"`
	TotalTokens      int         `bson:"total_tokens" json:"total_tokens"`
	Sources          []sourceDoc `bson:"sources" json:"sources"`
}

type sourceDoc struct {
	URI   string `bson:"uri" json:"uri"`
	Title string `bson:"title" json:"title"`
}

func docFromSession(sess *Session) sessionDoc {
	engines := make(map[string]runDoc, len(sess.Engines))
	for id, r := range sess.Engines {
		engines[id] = docFromRun(r)
	}
	return sessionDoc{
		SessionID:    sess.ID,
		SubjectLabel: sess.SubjectLabel,
		UpdatedAt:    sess.UpdatedAt,
		TotalTokens:  sess.TotalTokens,
		Verdict:      sess.Verdict,
		Summary:      sess.Summary,
		Engines:      engines,
	}
}

func docFromRun(r *engine.Run) runDoc {
	sources := make([]sourceDoc, 0, len(r.Sources))
	for _, src := range r.Sources {
		sources = append(sources, sourceDoc{URI: src.URI, Title: src.Title})
	}
	return runDoc{
		Status:           r.Status.String(),
		ResultText:       r.ResultText,
		ErrorMessage:     r.ErrorMessage,
		PromptTokens:     r.TokenUsage.PromptTokens,
		CompletionTokens: r.TokenUsage.CompletionTokens,
		TotalTokens:      r.TokenUsage.TotalTokens,
		Sources:          sources,
	}
}

func (d sessionDoc) toSession() *Session {
	engines := make(map[string]*engine.Run, len(d.Engines))
	for id, rd := range d.Engines {
		engines[id] = rd.toRun(id)
	}
	return &Session{
		ID:           d.SessionID,
		SubjectLabel: d.SubjectLabel,
		UpdatedAt:    d.UpdatedAt,
		Engines:      engines,
		TotalTokens:  d.TotalTokens,
		Verdict:      d.Verdict,
		Summary:      d.Summary,
	}
}

func (d runDoc) toRun(engineID string) *engine.Run {
	var sources []engine.Source
	for _, src := range d.Sources {
		sources = append(sources, engine.Source{URI: src.URI, Title: src.Title})
	}
	return &engine.Run{
		EngineID:     engineID,
		Status:       engine.ParseStatus(d.Status),
		ResultText:   d.ResultText,
		ErrorMessage: d.ErrorMessage,
		TokenUsage: engine.TokenUsage{
			PromptTokens:     d.PromptTokens,
			CompletionTokens: d.CompletionTokens,
			TotalTokens:      d.TotalTokens,
		},
		Sources: sources,
	}
}

// sortNewestFirst orders sessions by UpdatedAt descending in place.
func sortNewestFirst(sessions []*Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt > sessions[j].UpdatedAt
	})
}
