package export

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/teacurran/planning-poker/internal/models"
)

var csvHeader = []string{"round", "story", "participant", "card", "consensus", "average", "median"}

// RenderCSV produces the session report as RFC 4180 CSV with CRLF line
// endings. Output is deterministic: rounds ascend by number, votes within a
// round ascend by participant name. Rendering the same session twice yields
// identical bytes.
func RenderCSV(r *Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true

	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, round := range r.Rounds {
		for _, vote := range r.orderedVotes(round.ID) {
			record := []string{
				strconv.Itoa(round.RoundNumber),
				strOrEmpty(round.StoryTitle),
				r.Names[vote.ParticipantID],
				vote.CardValue,
				consensusField(round),
				avgField(round),
				strOrEmpty(round.Median),
			}
			if err := w.Write(record); err != nil {
				return nil, err
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func consensusField(round *models.Round) string {
	if round.ConsensusReached == nil {
		return ""
	}
	return strconv.FormatBool(*round.ConsensusReached)
}

func avgField(round *models.Round) string {
	if round.Average == nil {
		return ""
	}
	return strconv.FormatFloat(*round.Average, 'f', 2, 64)
}
