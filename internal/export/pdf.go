package export

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"
)

// pdfEpoch pins the document creation date so rendering the same session
// always yields identical bytes.
var pdfEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// RenderPDF produces the session report as a PDF. Content ordering matches
// RenderCSV; the pinned creation date keeps the output byte-identical across
// renders of the same session.
func RenderPDF(r *Report) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(pdfEpoch)
	pdf.SetModificationDate(pdfEpoch)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Planning Poker Session Report")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Room: %s", r.Session.RoomID))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Session start: %s", r.Session.StartedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(6)
	stats := r.Session.SummaryStats
	pdf.Cell(0, 6, fmt.Sprintf(
		"Rounds: %d   Votes: %d   Consensus rate: %.0f%%",
		r.Session.TotalRounds, stats.TotalVotes, stats.ConsensusRate*100,
	))
	pdf.Ln(10)

	for _, round := range r.Rounds {
		pdf.SetFont("Helvetica", "B", 11)
		title := fmt.Sprintf("Round %d", round.RoundNumber)
		if round.StoryTitle != nil {
			title += ": " + *round.StoryTitle
		}
		pdf.Cell(0, 7, tr(title))
		pdf.Ln(7)

		pdf.SetFont("Helvetica", "", 10)
		pdf.Cell(0, 5, fmt.Sprintf(
			"average %s   median %s   consensus %s",
			avgOrDash(round.Average), dashOrStr(round.Median), consensusOrDash(round.ConsensusReached),
		))
		pdf.Ln(6)

		for _, vote := range r.orderedVotes(round.ID) {
			pdf.CellFormat(80, 5, tr(r.Names[vote.ParticipantID]), "", 0, "L", false, 0, "")
			pdf.CellFormat(30, 5, tr(vote.CardValue), "", 0, "L", false, 0, "")
			pdf.Ln(5)
		}
		pdf.Ln(4)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func avgOrDash(f *float64) string {
	if f == nil {
		return "-"
	}
	return strconv.FormatFloat(*f, 'f', 2, 64)
}

func dashOrStr(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func consensusOrDash(b *bool) string {
	if b == nil {
		return "-"
	}
	return strconv.FormatBool(*b)
}
