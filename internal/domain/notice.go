package domain

type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeWarn  NoticeLevel = "warn"
	NoticeError NoticeLevel = "error"
)

// Notice codes. Each has a template in the message catalog.
const (
	NoticeSolved              = "puzzle_solved"
	NoticeIncorrect           = "puzzle_incorrect"
	NoticeSubmitRejected      = "submit_rejected"
	NoticeSubmitFailed        = "submit_failed"
	NoticeAuthRequired        = "auth_required"
	NoticeTimedOut            = "session_timed_out"
	NoticeCompleted           = "session_completed"
	NoticeCannotRender        = "puzzle_cannot_render"
	NoticeParticipantJoined   = "participant_joined"
	NoticeSyncError           = "sync_error"
	NoticeSyncUnavailable     = "sync_unavailable"
	NoticeCompetitionEnded    = "competition_ended"
	NoticeLeaderboardStale    = "leaderboard_stale"
	NoticePuzzleAlreadySolved = "puzzle_already_solved"
)

// NoticeCodes lists every code above.
var NoticeCodes = []string{
	NoticeSolved, NoticeIncorrect, NoticeSubmitRejected, NoticeSubmitFailed, NoticeAuthRequired,
	NoticeTimedOut, NoticeCompleted, NoticeCannotRender, NoticeParticipantJoined, NoticeSyncError,
	NoticeSyncUnavailable, NoticeCompetitionEnded, NoticeLeaderboardStale, NoticePuzzleAlreadySolved,
}

// Notice is a user-facing event; text is resolved by the presenter.
type Notice struct {
	Code  string
	Level NoticeLevel
	Args  map[string]any
}

func NewNotice(level NoticeLevel, code string, kv ...any) Notice {
	n := Notice{Code: code, Level: level}
	if len(kv) > 1 {
		n.Args = make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			if k, ok := kv[i].(string); ok {
				n.Args[k] = kv[i+1]
			}
		}
	}
	return n
}
