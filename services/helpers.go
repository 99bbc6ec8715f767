package services

import "github.com/Dosada05/tournament-progression/models"

// --- Общие хелперы ---

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func sameWinner(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// --- Хелперы для сессий ---

func completedSessions(sessions []models.Session) []models.Session {
	out := make([]models.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.IsCompleted() {
			out = append(out, s)
		}
	}
	return out
}

// sessionIDs возвращает идентификаторы сессий в исходном порядке.
func sessionIDs(sessions []models.Session) []int {
	ids := make([]int, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	return ids
}
