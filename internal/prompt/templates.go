package prompt

import "repolens/internal/evidence"

// Section is one titled block of evidence. Providers are rendered in order.
type Section struct {
	Header    string   `yaml:"header"`
	Providers []string `yaml:"providers"`
}

// Template is the layout used for one analysis type.
type Template struct {
	Name         string    `yaml:"name"`
	Instructions []string  `yaml:"instructions"`
	Sections     []Section `yaml:"sections"`
}

// QuestionTemplate is used for free-text questions and unknown analysis types.
const QuestionTemplate = "question"

var answerRules = []string{
	"Answer only from the evidence below; say so when the evidence does not cover something.",
	"Cite file paths, commit SHAs or issue numbers when you rely on them.",
	"If some sources were unavailable, mention which ones and how that limits the answer.",
}

// DefaultTemplates holds one template per analysis type plus QuestionTemplate.
var DefaultTemplates = map[string]Template{
	QuestionTemplate: {
		Name:         QuestionTemplate,
		Instructions: []string{"Answer the user's question about this repository clearly and concisely."},
		Sections: []Section{
			{Header: "Repository overview", Providers: []string{evidence.Overview}},
			{Header: "Relevant files", Providers: []string{evidence.FileContent}},
			{Header: "Code search matches", Providers: []string{evidence.CodeSearch}},
			{Header: "Directory structure", Providers: []string{evidence.Structure}},
			{Header: "Recent commits", Providers: []string{evidence.CommitHistory}},
			{Header: "Issues and pull requests", Providers: []string{evidence.Issues}},
		},
	},
	"comprehensive": {
		Name: "comprehensive",
		Instructions: []string{
			"Based on the following repository analysis, provide a comprehensive but concise summary.",
			"Cover the project's purpose, architecture, code quality, activity and an overall assessment.",
		},
		Sections: []Section{
			{Header: "Overview", Providers: []string{evidence.Overview}},
			{Header: "Structure", Providers: []string{evidence.Structure}},
			{Header: "Key files", Providers: []string{evidence.FileContent}},
			{Header: "History", Providers: []string{evidence.CommitHistory}},
			{Header: "Issues and pull requests", Providers: []string{evidence.Issues}},
			{Header: "Code search matches", Providers: []string{evidence.CodeSearch}},
		},
	},
	"quick": {
		Name:         "quick",
		Instructions: []string{"Provide a brief 2-3 sentence overview of this repository based on the available information."},
		Sections: []Section{
			{Header: "Overview", Providers: []string{evidence.Overview}},
			{Header: "Top-level layout", Providers: []string{evidence.Structure}},
		},
	},
	"security": {
		Name: "security",
		Instructions: []string{
			"Review this repository for security concerns.",
			"Point out hard-coded secrets, unsafe evaluation, credential handling and risky dependencies.",
			"Rate each finding as low, medium or high and suggest a fix.",
		},
		Sections: []Section{
			{Header: "Suspicious code", Providers: []string{evidence.CodeSearch}},
			{Header: "Configuration and manifests", Providers: []string{evidence.FileContent}},
			{Header: "Project context", Providers: []string{evidence.Overview}},
		},
	},
	"code_quality": {
		Name: "code_quality",
		Instructions: []string{
			"Assess the code quality of this repository.",
			"Comment on organisation, test presence, outstanding TODO/FIXME markers and maintainability.",
		},
		Sections: []Section{
			{Header: "Layout", Providers: []string{evidence.Structure}},
			{Header: "Representative files", Providers: []string{evidence.FileContent}},
			{Header: "Markers and tests", Providers: []string{evidence.CodeSearch}},
		},
	},
	"dependency": {
		Name: "dependency",
		Instructions: []string{
			"Analyze these project dependencies.",
			"Describe the technology stack and frameworks used and the dependency management approach.",
			"Flag potential security or version issues and modernization opportunities.",
		},
		Sections: []Section{
			{Header: "Dependency manifests", Providers: []string{evidence.FileContent}},
			{Header: "Import and require sites", Providers: []string{evidence.CodeSearch}},
			{Header: "Project context", Providers: []string{evidence.Overview, evidence.Structure}},
		},
	},
	"architecture": {
		Name: "architecture",
		Instructions: []string{
			"Analyze the structure of this repository.",
			"Describe the project organization, key directories and their purposes, and file organization patterns.",
			"Note potential improvements or issues.",
		},
		Sections: []Section{
			{Header: "Directory structure", Providers: []string{evidence.Structure}},
			{Header: "Overview", Providers: []string{evidence.Overview}},
			{Header: "Entry points and manifests", Providers: []string{evidence.FileContent}},
		},
	},
	"activity": {
		Name: "activity",
		Instructions: []string{
			"Summarize recent development activity.",
			"Identify the main contributors, the areas being worked on and open problems.",
		},
		Sections: []Section{
			{Header: "Recent commits", Providers: []string{evidence.CommitHistory}},
			{Header: "Issues and pull requests", Providers: []string{evidence.Issues}},
			{Header: "Overview", Providers: []string{evidence.Overview}},
		},
	},
	"documentation": {
		Name: "documentation",
		Instructions: []string{
			"Evaluate the documentation of this repository.",
			"Say what is documented well, what is missing and how a newcomer would get started.",
		},
		Sections: []Section{
			{Header: "Documentation files", Providers: []string{evidence.FileContent}},
			{Header: "Layout", Providers: []string{evidence.Structure}},
			{Header: "Overview", Providers: []string{evidence.Overview}},
		},
	},
}
