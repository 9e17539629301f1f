package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"yt-clip-studio/internal/download"
	"yt-clip-studio/internal/editor"
	"yt-clip-studio/internal/logging"
	"yt-clip-studio/internal/model"
	"yt-clip-studio/internal/poller"
	"yt-clip-studio/internal/runstore"
)

type studioMode int

const (
	studioModeJobs studioMode = iota
	studioModeForm
	studioModeWatch
	studioModeClips
	studioModeClipText
)

// studioClient is the backend surface the studio uses; *api.Client satisfies it.
type studioClient interface {
	CreateJob(ctx context.Context, req model.CreateJobRequest) (model.Job, error)
	ListJobs(ctx context.Context) ([]model.Job, error)
	GetJob(ctx context.Context, jobID string) (model.Job, error)
	AdvanceJob(ctx context.Context, jobID string) (model.Job, error)
	UpdateClip(ctx context.Context, jobID, clipID string, patch model.ClipPatch) (model.Clip, error)
	ResolveClips(ctx context.Context, job model.Job) ([]model.Clip, error)
	Open(ctx context.Context, rawURL string) (*http.Response, error)
}

type studioDeps struct {
	client       studioClient
	dispatcher   *download.Dispatcher
	fetcher      *download.Fetcher
	dataDir      string
	apiBase      string
	downloadRoot string
	interval     time.Duration
	logger       *slog.Logger
}

// cache merges snapshots into jobs.json; a studio without a data dir skips it.
func (d studioDeps) cache(jobs ...model.Job) {
	if d.dataDir == "" || len(jobs) == 0 {
		return
	}
	if err := runstore.MergeJobs(d.dataDir, d.apiBase, jobs...); err != nil {
		d.logger.Warn("update jobs cache failed", "error", err)
	}
}

type studioModel struct {
	ctx      context.Context
	deps     studioDeps
	tracker  *poller.Tracker
	notices  *noticeLog
	editor   *editor.Session
	spinner  spinner.Model
	progress progress.Model

	mode   studioMode
	cursor int
	width  int
	height int
	form   *studioForm

	clipsJobID   string
	clips        []model.Clip
	clipCursor   int
	clipsLoading bool
	clipError    string
	textKey      string
	saving       bool
	retrying     bool

	statusMessage string
	offline       bool
	fatalErr      error
}

type jobsLoadedMsg struct {
	jobs   []model.Job
	cached bool
	err    error
}

type jobCreatedMsg struct {
	job model.Job
	err error
}

type pollEventMsg struct {
	event poller.Event
}

type pollClosedMsg struct {
	sessionID uint64
}

type retryMsg struct {
	jobID string
	job   model.Job
	err   error
}

type clipsLoadedMsg struct {
	jobID string
	clips []model.Clip
	err   error
}

type clipSavedMsg struct {
	jobID string
	clip  model.Clip
	err   error
}

type downloadDoneMsg struct {
	name  string
	path  string
	bytes int64
	err   error
}

var (
	studioTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	studioMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	studioErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	studioOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	studioPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	studioSelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)
	studioRangeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
)

func runStudio(args []string) error {
	fs := flag.NewFlagSet("studio", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !stdinIsTTY() {
		return errors.New("studio requires an interactive terminal (TTY)")
	}

	app, err := openApp("studio")
	if err != nil {
		return err
	}
	defer app.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := newStudioModel(ctx, studioDeps{
		client:       app.client,
		dispatcher:   app.dispatcher,
		fetcher:      app.newFetcher(nil),
		dataDir:      app.cfg.DataDir(),
		apiBase:      app.cfg.APIBase(),
		downloadRoot: filepath.Join(app.cfg.DataDir(), "downloads"),
		interval:     app.cfg.PollInterval(),
		logger:       app.logger,
	})
	p := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := p.Run()
	m.tracker.Stop()
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "tty") {
			return errors.New("studio requires an interactive terminal (TTY)")
		}
		return err
	}
	if fm, ok := finalModel.(studioModel); ok {
		return fm.fatalErr
	}
	return nil
}

func newStudioModel(ctx context.Context, deps studioDeps) studioModel {
	if deps.logger == nil {
		deps.logger = logging.Discard()
	}
	notices := &noticeLog{}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = studioTitleStyle
	return studioModel{
		ctx:  ctx,
		deps: deps,
		tracker: poller.NewTracker(deps.client, notices, nil, poller.Options{
			Interval: deps.interval,
			Logger:   deps.logger,
		}),
		notices:  notices,
		editor:   editor.NewSession(deps.client),
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient()),
		mode:     studioModeJobs,
	}
}

func (m studioModel) Init() tea.Cmd {
	return loadJobsCmd(m.ctx, m.deps)
}

func (m studioModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = clampInt(msg.Width-12, 20, 80)
		m.form.resize(m.width)
		return m, nil
	case jobsLoadedMsg:
		if msg.err != nil {
			m.statusMessage = "error: " + msg.err.Error()
			return m, nil
		}
		if m.tracker.Jobs().Len() == 0 {
			m.tracker.Jobs().Replace(msg.jobs)
		} else {
			m.tracker.MergeList(msg.jobs)
		}
		m.offline = msg.cached
		if msg.cached {
			m.statusMessage = "error: backend unreachable, showing cached jobs"
		}
		m.cursor = clampInt(m.cursor, 0, maxInt(m.tracker.Jobs().Len()-1, 0))
		return m, nil
	case jobCreatedMsg:
		if msg.err != nil {
			if m.form != nil {
				m.form.Error = msg.err.Error()
				m.form.Saving = false
			}
			return m, nil
		}
		m.form = nil
		m.cursor = 0
		m.statusMessage = "job created: " + msg.job.ID
		return m.trackJob(msg.job)
	case pollEventMsg:
		return m.applyPollEvent(msg.event)
	case pollClosedMsg:
		return m, nil
	case retryMsg:
		m.retrying = false
		if msg.err != nil {
			m.statusMessage = "error: " + msg.err.Error()
			return m, nil
		}
		if active, ok := m.tracker.Active(); !ok || active.ID != msg.jobID {
			// The user moved on; record the reply without switching subjects.
			m.tracker.Observe(msg.job)
			m.statusMessage = "job resubmitted: " + msg.job.ID
			return m, cacheJobsCmd(m.deps, msg.job)
		}
		m.statusMessage = "job resubmitted: " + msg.job.ID
		return m.trackJob(msg.job)
	case clipsLoadedMsg:
		if msg.jobID != m.clipsJobID {
			return m, nil
		}
		m.clipsLoading = false
		if msg.err != nil {
			m.clipError = msg.err.Error()
			return m, nil
		}
		m.clips = msg.clips
		m.clipCursor = clampInt(m.clipCursor, 0, maxInt(len(m.clips)-1, 0))
		m.bindSelectedClip()
		return m, nil
	case clipSavedMsg:
		m.saving = false
		if msg.err != nil {
			m.clipError = "save failed: " + msg.err.Error()
			return m, nil
		}
		m.clipError = ""
		m.statusMessage = "saved clip: " + msg.clip.Title
		if msg.jobID != m.clipsJobID {
			return m, nil
		}
		m.clips, _ = model.ReplaceClip(m.clips, msg.clip)
		if m.editor.Bound() && m.editor.Clip().ID == msg.clip.ID {
			m.editor.Bind(msg.jobID, msg.clip, m.editor.SourceDuration())
		}
		return m, nil
	case downloadDoneMsg:
		if msg.err != nil {
			m.statusMessage = "error: " + msg.err.Error()
			return m, nil
		}
		m.statusMessage = fmt.Sprintf("downloaded %s (%d bytes)", msg.path, msg.bytes)
		return m, nil
	case spinner.TickMsg:
		if m.tracker.State() != poller.StatePolling {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch m.mode {
	case studioModeJobs:
		return m.updateJobs(keyMsg)
	case studioModeForm:
		return m.updateForm(keyMsg)
	case studioModeWatch:
		return m.updateWatch(keyMsg)
	case studioModeClips:
		return m.updateClips(keyMsg)
	case studioModeClipText:
		return m.updateClipText(keyMsg)
	default:
		return m, nil
	}
}

func (m studioModel) updateJobs(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	jobs := m.tracker.Jobs().Jobs()
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		if m.cursor < len(jobs)-1 {
			m.cursor++
		}
		return m, nil
	case "n":
		m.mode = studioModeForm
		m.form = newJobForm(m.width)
		m.statusMessage = ""
		return m, nil
	case "r":
		m.statusMessage = "refreshing jobs..."
		return m, loadJobsCmd(m.ctx, m.deps)
	case "enter", "w":
		if len(jobs) == 0 {
			m.statusMessage = "no jobs yet, press n to create one"
			return m, nil
		}
		job := jobs[clampInt(m.cursor, 0, len(jobs)-1)]
		m.statusMessage = ""
		if job.Status == model.StatusCompleted && msg.String() == "enter" {
			return m.openClips(job)
		}
		return m.trackJob(job)
	}
	return m, nil
}

func (m studioModel) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.form == nil {
		m.mode = studioModeJobs
		return m, nil
	}
	if m.form.Saving {
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	}

	key := strings.ToLower(msg.String())
	switch key {
	case "ctrl+c", "esc":
		m.mode = studioModeJobs
		m.form = nil
		m.statusMessage = "new job cancelled"
		return m, nil
	case "up", "shift+tab":
		m.form.commitInput()
		if m.form.Index > 0 {
			m.form.Index--
		}
		m.form.loadFieldIntoInput()
		return m, nil
	case "down", "tab":
		m.form.commitInput()
		if m.form.Index < len(m.form.Fields)-1 {
			m.form.Index++
		}
		m.form.loadFieldIntoInput()
		return m, nil
	case " ", "right", "l":
		if m.form.currentField().Kind == studioFieldSelect {
			m.form.stepSelectOption(1)
			return m, nil
		}
	case "left", "h":
		if m.form.currentField().Kind == studioFieldSelect {
			m.form.stepSelectOption(-1)
			return m, nil
		}
	case "enter", "ctrl+s":
		m.form.commitInput()
		if m.form.Index < len(m.form.Fields)-1 && key != "ctrl+s" {
			m.form.Index++
			m.form.loadFieldIntoInput()
			return m, nil
		}
		req, err := m.form.toCreateJobRequest()
		if err != nil {
			m.form.Error = err.Error()
			return m, nil
		}
		m.form.Error = ""
		m.form.Saving = true
		return m, createJobCmd(m.ctx, m.deps, req)
	}

	if m.form.currentField().Kind == studioFieldSelect {
		return m, nil
	}
	var cmd tea.Cmd
	m.form.Input, cmd = m.form.Input.Update(msg)
	m.form.Fields[m.form.Index].Value = m.form.Input.Value()
	return m, cmd
}

func (m studioModel) updateWatch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	active, ok := m.tracker.Active()
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "esc", "b":
		m.mode = studioModeJobs
		m.statusMessage = ""
		return m, nil
	case "r":
		if !ok || active.Status != model.StatusError {
			return m, nil
		}
		if m.retrying {
			return m, nil
		}
		m.retrying = true
		m.statusMessage = "resubmitting job..."
		return m, retryCmd(m.ctx, m.deps, active.ID)
	case "enter", "c":
		if !ok || active.Status != model.StatusCompleted {
			return m, nil
		}
		return m.openClips(active)
	}
	return m, nil
}

func (m studioModel) updateClips(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" || key == "q" {
		return m, tea.Quit
	}
	if m.saving {
		return m, nil
	}
	switch key {
	case "esc", "b":
		if m.editor.Dirty() {
			m.statusMessage = "unsaved edits discarded"
		}
		m.editor.Unbind()
		m.mode = studioModeJobs
		return m, nil
	case "up", "k":
		if m.clipCursor > 0 {
			m.selectClip(m.clipCursor - 1)
		}
		return m, nil
	case "down", "j":
		if m.clipCursor < len(m.clips)-1 {
			m.selectClip(m.clipCursor + 1)
		}
		return m, nil
	case "left", "[":
		m.editor.Nudge(-1, editor.EdgeStart)
		return m, nil
	case "right", "]":
		m.editor.Nudge(1, editor.EdgeStart)
		return m, nil
	case "shift+left", ",":
		m.editor.Nudge(-1, editor.EdgeEnd)
		return m, nil
	case "shift+right", ".":
		m.editor.Nudge(1, editor.EdgeEnd)
		return m, nil
	case "t":
		if !m.editor.Bound() {
			return m, nil
		}
		m.textKey = "title"
		m.form = newTextForm("Clip Title", "title", "Title", m.editor.Title(), m.width)
		m.mode = studioModeClipText
		return m, nil
	case "c":
		if !m.editor.Bound() {
			return m, nil
		}
		m.textKey = "caption"
		m.form = newTextForm("Clip Caption", "caption", "Caption", m.editor.Caption(), m.width)
		m.mode = studioModeClipText
		return m, nil
	case "u":
		m.bindSelectedClip()
		m.clipError = ""
		return m, nil
	case "s", "ctrl+s":
		if !m.editor.Dirty() {
			m.statusMessage = "nothing to save"
			return m, nil
		}
		m.saving = true
		m.clipError = ""
		return m, saveClipCmd(m.ctx, *m.editor)
	case "o":
		clip, ok := m.selectedClip()
		if !ok {
			return m, nil
		}
		target := m.deps.dispatcher.ClipTarget(clip)
		if !target.Available {
			m.statusMessage = clip.Title + ": " + target.Reason
			return m, nil
		}
		m.statusMessage = "downloading " + target.Name + "..."
		return m, downloadCmd(m.ctx, m.deps, m.clipsJobID, target)
	case "z":
		target := m.deps.dispatcher.JobTarget(m.clipsJobID)
		m.statusMessage = "downloading " + target.Name + "..."
		return m, downloadCmd(m.ctx, m.deps, m.clipsJobID, target)
	case "r":
		job, ok := m.tracker.Jobs().Get(m.clipsJobID)
		if !ok {
			return m, nil
		}
		return m.openClips(job)
	}
	return m, nil
}

func (m studioModel) updateClipText(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.form == nil {
		m.mode = studioModeClips
		return m, nil
	}
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.form = nil
		m.mode = studioModeClips
		return m, nil
	case "enter":
		m.form.commitInput()
		v := m.form.value(m.textKey)
		if m.textKey == "caption" {
			m.editor.SetCaption(v)
		} else {
			m.editor.SetTitle(v)
		}
		m.form = nil
		m.mode = studioModeClips
		return m, nil
	}
	var cmd tea.Cmd
	m.form.Input, cmd = m.form.Input.Update(msg)
	m.form.Fields[m.form.Index].Value = m.form.Input.Value()
	return m, cmd
}

// trackJob makes job the active job and shows the watch view. Terminal jobs
// get no polling session.
func (m studioModel) trackJob(job model.Job) (tea.Model, tea.Cmd) {
	m.mode = studioModeWatch
	m.clipError = ""
	s := m.tracker.Track(m.ctx, job)
	cmds := []tea.Cmd{cacheJobsCmd(m.deps, job)}
	if s != nil {
		cmds = append(cmds, waitForPollEvent(s), m.spinner.Tick)
	}
	return m, tea.Batch(cmds...)
}

func (m studioModel) applyPollEvent(ev poller.Event) (tea.Model, tea.Cmd) {
	applied := m.tracker.Apply(ev)
	var cmds []tea.Cmd
	if s := m.tracker.Session(); s != nil && s.ID() == ev.SessionID && !s.Cancelled() {
		cmds = append(cmds, waitForPollEvent(s))
	}
	if !applied {
		return m, tea.Batch(cmds...)
	}
	if ev.Kind == poller.EventSnapshot && strings.HasPrefix(m.statusMessage, "connection problem") {
		m.statusMessage = ""
	}
	for _, n := range m.notices.drain() {
		switch n.kind {
		case noticeCompleted:
			m.statusMessage = fmt.Sprintf("job completed: %d clips ready", n.job.ClipCount)
			cmds = append(cmds, cacheJobsCmd(m.deps, n.job))
		case noticeFailed:
			m.statusMessage = "error: " + n.text
			cmds = append(cmds, cacheJobsCmd(m.deps, n.job))
		case noticeTransient:
			m.statusMessage = "connection problem, retrying: " + n.text
		}
	}
	return m, tea.Batch(cmds...)
}

func (m studioModel) openClips(job model.Job) (tea.Model, tea.Cmd) {
	m.mode = studioModeClips
	m.clipsJobID = job.ID
	m.clips = nil
	m.clipCursor = 0
	m.clipError = ""
	m.clipsLoading = true
	m.editor.Unbind()
	return m, loadClipsCmd(m.ctx, m.deps, job)
}

func (m studioModel) selectedClip() (model.Clip, bool) {
	if m.clipCursor < 0 || m.clipCursor >= len(m.clips) {
		return model.Clip{}, false
	}
	return m.clips[m.clipCursor], true
}

// selectClip moves the cursor and rebinds the editor, dropping unsaved edits.
func (m *studioModel) selectClip(i int) {
	if m.editor.Dirty() {
		m.statusMessage = "unsaved edits discarded"
	}
	m.clipCursor = i
	m.clipError = ""
	m.bindSelectedClip()
}

func (m *studioModel) bindSelectedClip() {
	clip, ok := m.selectedClip()
	if !ok {
		m.editor.Unbind()
		return
	}
	job, ok := m.tracker.Jobs().Get(m.clipsJobID)
	if !ok {
		job = model.Job{ID: m.clipsJobID}
	}
	m.editor.BindJob(job, clip)
}

func loadJobsCmd(ctx context.Context, deps studioDeps) tea.Cmd {
	return func() tea.Msg {
		jobs, err := deps.client.ListJobs(ctx)
		if err == nil {
			if deps.dataDir != "" {
				if serr := runstore.SaveJobs(deps.dataDir, deps.apiBase, jobs); serr != nil {
					deps.logger.Warn("save jobs cache failed", "error", serr)
				}
			}
			return jobsLoadedMsg{jobs: jobs}
		}
		deps.logger.Warn("list jobs failed", "error", err)
		if deps.dataDir == "" {
			return jobsLoadedMsg{err: err}
		}
		cache, cerr := runstore.LoadJobs(deps.dataDir)
		if cerr != nil || len(cache.Jobs) == 0 {
			return jobsLoadedMsg{err: err}
		}
		return jobsLoadedMsg{jobs: cache.Jobs, cached: true}
	}
}

func createJobCmd(ctx context.Context, deps studioDeps, req model.CreateJobRequest) tea.Cmd {
	return func() tea.Msg {
		job, err := deps.client.CreateJob(ctx, req)
		if err != nil {
			return jobCreatedMsg{err: err}
		}
		logging.WithJobID(deps.logger, job.ID).Info("job submitted", "url", job.YouTubeURL)
		return jobCreatedMsg{job: job}
	}
}

// waitForPollEvent hands the next event of s to the update loop.
func waitForPollEvent(s *poller.Session) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-s.Events()
		if !ok {
			return pollClosedMsg{sessionID: s.ID()}
		}
		return pollEventMsg{event: ev}
	}
}

func retryCmd(ctx context.Context, deps studioDeps, jobID string) tea.Cmd {
	return func() tea.Msg {
		job, err := deps.client.AdvanceJob(ctx, jobID)
		if err != nil {
			return retryMsg{jobID: jobID, err: fmt.Errorf("retry job %s: %w", jobID, err)}
		}
		return retryMsg{jobID: jobID, job: job}
	}
}

func loadClipsCmd(ctx context.Context, deps studioDeps, job model.Job) tea.Cmd {
	return func() tea.Msg {
		clips, err := deps.client.ResolveClips(ctx, job)
		return clipsLoadedMsg{jobID: job.ID, clips: clips, err: err}
	}
}

// saveClipCmd saves a copy of the editor session so the update loop never
// shares it with the command goroutine.
func saveClipCmd(ctx context.Context, session editor.Session) tea.Cmd {
	return func() tea.Msg {
		clip, err := session.Save(ctx)
		return clipSavedMsg{jobID: session.JobID(), clip: clip, err: err}
	}
}

func downloadCmd(ctx context.Context, deps studioDeps, jobID string, target download.Target) tea.Cmd {
	return func() tea.Msg {
		dest := filepath.Join(deps.downloadRoot, jobID, target.Name)
		res, err := deps.fetcher.Fetch(ctx, target, dest)
		if err != nil {
			return downloadDoneMsg{name: target.Name, err: err}
		}
		return downloadDoneMsg{name: target.Name, path: res.Path, bytes: res.Bytes}
	}
}

func cacheJobsCmd(deps studioDeps, jobs ...model.Job) tea.Cmd {
	return func() tea.Msg {
		deps.cache(jobs...)
		return nil
	}
}

type noticeKind int

const (
	noticeCompleted noticeKind = iota
	noticeFailed
	noticeTransient
)

type notice struct {
	kind noticeKind
	job  model.Job
	text string
}

// noticeLog collects tracker notifications raised during Apply so Update can
// turn them into status lines.
type noticeLog struct {
	pending []notice
}

func (n *noticeLog) JobCompleted(job model.Job) {
	n.pending = append(n.pending, notice{kind: noticeCompleted, job: job})
}

func (n *noticeLog) JobFailed(job model.Job, message string) {
	n.pending = append(n.pending, notice{kind: noticeFailed, job: job, text: message})
}

func (n *noticeLog) TransientError(err error) {
	n.pending = append(n.pending, notice{kind: noticeTransient, text: err.Error()})
}

func (n *noticeLog) drain() []notice {
	out := n.pending
	n.pending = nil
	return out
}
