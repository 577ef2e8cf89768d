package rbac

const (
	PermAnswerKeyPreview = "answerkey:preview"
	PermAnswerKeyCommit  = "answerkey:commit"
	PermSubmissionScore  = "submission:score"
	PermRankingView      = "ranking:view"
	PermReadinessView    = "readiness:view"
	PermReleaseRun       = "release:run"
	PermNoticeRead       = "notice:read" // own rescore notices only
)

// Default policy. Examinees may still read the ranking of their own
// submission, which handlers check against the token subject.
var RolePermissions = map[string][]string{
	"examinee": {
		PermSubmissionScore,
		PermNoticeRead,
	},
	"operator": {
		PermSubmissionScore,
		PermAnswerKeyPreview,
		PermRankingView,
		PermReadinessView,
		PermNoticeRead,
	},
	"admin": {
		"*", // everything
	},
}
