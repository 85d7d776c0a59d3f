package api

// Program names of the collaborator binaries. They double as log names.
const (
	ProgramClient = "webrtc_client"
	ProgramProxy  = "sidekick_proxy"
	ProgramServer = "webrtc_server"
)

// Process describes one collaborator launch: where it runs, what it runs
// and where its output goes.
type Process struct {
	Node    string
	Program string
	Path    string // resolved binary path
	Args    []string
	LogPath string
}
