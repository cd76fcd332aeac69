package evidence

// Names of the built-in providers.
const (
	Overview      = "overview"
	Structure     = "structure"
	FileContent   = "file_content"
	CommitHistory = "commit_history"
	CodeSearch    = "code_search"
	Issues        = "issues"
)
