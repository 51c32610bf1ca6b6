package domain

import (
	"encoding/json"
	"slices"
)

// Cipher is a puzzle of the cipher game. Name, task and hint are only
// disclosed once the cipher has started or the hint is visible.
type Cipher struct {
	ID              ID        `json:"id" validate:"required"`
	Name            string    `json:"name"`
	Start           Timestamp `json:"start"`
	Started         bool      `json:"started"`
	SubmissionDelay int       `json:"submission_delay" validate:"gte=0"`
	TaskFile        string    `json:"task_file"`
	HintVisible     bool      `json:"hint_visible"`
	Hint            string    `json:"hint_text"`
	HintPublishTime Timestamp `json:"hint_publish_time"`
	End             Timestamp `json:"end"`
	HasEnded        bool      `json:"has_ended"`

	Progress    *CipherProgress `json:"data"`
	Submissions []Submission    `json:"-"`
}

// CipherProgress is the current user's standing on a cipher.
type CipherProgress struct {
	Solved    bool `json:"solved"`
	AfterHint bool `json:"after_hint"`
	Attempts  int  `json:"attempts" validate:"gte=0"`
}

// Submission is one answer the user submitted for a cipher.
type Submission struct {
	ID      ID        `json:"id"`
	Answer  string    `json:"answer"`
	Correct bool      `json:"correct"`
	Time    Timestamp `json:"time" validate:"required"`
}

// ParseCipher decodes a cipher and strips what is not disclosed yet.
func ParseCipher(raw json.RawMessage) (Cipher, error) {
	c, err := decode[Cipher]("cipher", raw)
	if err != nil {
		return Cipher{}, err
	}
	if !c.Started {
		c.Name = ""
		c.TaskFile = ""
	}
	if !c.HintVisible {
		c.Hint = ""
	}
	return c, nil
}

// ParseSubmissions decodes a submission list, newest first.
func ParseSubmissions(raw json.RawMessage) ([]Submission, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(raw, &raws); err != nil {
		return nil, err
	}
	out := make([]Submission, 0, len(raws))
	for _, r := range raws {
		s, err := decode[Submission]("submission", r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	slices.SortStableFunc(out, func(a, b Submission) int {
		return b.Time.Compare(a.Time.Time)
	})
	return out, nil
}
