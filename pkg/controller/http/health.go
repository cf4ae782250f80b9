package http

import (
	"net/http"
	"time"

	"github.com/zettel-lab/kasten/pkg/domain/model"
)

type islandBody struct {
	Size    int      `json:"size"`
	NoteIDs []string `json:"note_ids"`
}

type danglingLinkBody struct {
	NoteID      string `json:"note_id"`
	TargetTitle string `json:"target_title"`
}

type duplicateCandidateBody struct {
	A          string  `json:"a"`
	B          string  `json:"b"`
	Similarity float64 `json:"similarity"`
}

type healthReportBody struct {
	GeneratedAt         time.Time                `json:"generated_at"`
	TotalNotes          int                      `json:"total_notes"`
	OrphanCount         int                      `json:"orphan_count"`
	Orphans             []string                 `json:"orphans,omitempty"`
	MainGraphSize       int                      `json:"main_graph_size"`
	Islands             []islandBody             `json:"islands,omitempty"`
	DanglingLinks       []danglingLinkBody       `json:"dangling_links,omitempty"`
	DuplicateCandidates []duplicateCandidateBody `json:"duplicate_candidates,omitempty"`
	SplitCandidates     []string                 `json:"split_candidates,omitempty"`
	DurationMs          int64                    `json:"duration_ms"`
}

func toHealthReportBody(report *model.HealthReport) *healthReportBody {
	body := &healthReportBody{
		GeneratedAt:   report.GeneratedAt,
		TotalNotes:    report.TotalNotes,
		OrphanCount:   report.OrphanCount,
		Orphans:       noteIDStrings(report.Orphans),
		MainGraphSize: report.MainGraphSize,
		DurationMs:    report.Duration.Milliseconds(),
	}
	for _, island := range report.Islands {
		body.Islands = append(body.Islands, islandBody{
			Size:    island.Size,
			NoteIDs: noteIDStrings(island.NoteIDs),
		})
	}
	for _, link := range report.DanglingLinks {
		body.DanglingLinks = append(body.DanglingLinks, danglingLinkBody{
			NoteID:      string(link.NoteID),
			TargetTitle: link.TargetTitle,
		})
	}
	for _, dup := range report.DuplicateCandidates {
		body.DuplicateCandidates = append(body.DuplicateCandidates, duplicateCandidateBody{
			A:          string(dup.A),
			B:          string(dup.B),
			Similarity: dup.Similarity,
		})
	}
	body.SplitCandidates = noteIDStrings(report.SplitCandidates)
	return body
}

func noteIDStrings(ids []model.NoteID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// healthReport serves the latest report. 404 until the first run completes.
func (s *Server) healthReport(w http.ResponseWriter, r *http.Request) {
	report := s.uc.HealthReport()
	if report == nil {
		http.Error(w, "no health report yet", http.StatusNotFound)
		return
	}

	respondJSON(w, r, http.StatusOK, toHealthReportBody(report))
}

// runHealthCheck triggers a synchronous scan. 409 when a run is in flight.
func (s *Server) runHealthCheck(w http.ResponseWriter, r *http.Request) {
	report, err := s.uc.RunHealthCheck(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, toHealthReportBody(report))
}
