package cheat_report

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/r4g3baby/cheat-report/database"
)

const multipartMemory = 32 << 20

type (
	reporterView struct {
		ID          uint64 `json:"id"`
		Username    string `json:"username"`
		SteamName   string `json:"steamName,omitempty"`
		DiscordName string `json:"discordName,omitempty"`
	}

	reportView struct {
		ID          uint64        `json:"id"`
		SteamID     string        `json:"steamId"`
		SteamName   string        `json:"steamName,omitempty"`
		MatchID     string        `json:"matchId,omitempty"`
		Type        string        `json:"type"`
		Description string        `json:"description"`
		EvidenceURL string        `json:"evidenceUrl,omitempty"`
		Approved    bool          `json:"approved"`
		CreatedAt   time.Time     `json:"createdAt"`
		Reporter    *reporterView `json:"reporter,omitempty"`
		HasDiscord  bool          `json:"hasDiscord"`
	}

	accountView struct {
		ID          uint64    `json:"id"`
		Username    string    `json:"username"`
		SteamID     string    `json:"steamId,omitempty"`
		SteamName   string    `json:"steamName,omitempty"`
		DiscordID   string    `json:"discordId,omitempty"`
		DiscordName string    `json:"discordName,omitempty"`
		IsAdmin     bool      `json:"isAdmin"`
		IsApproved  bool      `json:"isApproved"`
		CreatedAt   time.Time `json:"createdAt"`
	}

	loginRequest struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
)

func (server *Server) register(w http.ResponseWriter, r *http.Request) {
	var registration Registration
	if err := json.NewDecoder(r.Body).Decode(&registration); err != nil {
		writeError(w, invalid("body", "must be valid JSON"))
		return
	}

	account, err := server.accounts.Register(r.Context(), registration)
	if err != nil {
		server.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAccountView(*account))
}

func (server *Server) login(w http.ResponseWriter, r *http.Request) {
	var login loginRequest
	if err := json.NewDecoder(r.Body).Decode(&login); err != nil {
		writeError(w, invalid("body", "must be valid JSON"))
		return
	}

	session, err := server.accounts.Login(r.Context(), login.Username, login.Password)
	if err != nil {
		server.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// submitReport stages the optional evidence file and hands the submission to
// the pipeline. A 202 only means the report was queued.
func (server *Server) submitReport(w http.ResponseWriter, r *http.Request) {
	if server.cfg.Blob.MaxSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, server.cfg.Blob.MaxSize+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, invalid("body", "could not be parsed"))
		return
	}

	submission := Submission{
		SteamID:      r.FormValue("steamId"),
		MatchID:      r.FormValue("matchId"),
		Category:     r.FormValue("type"),
		Description:  r.FormValue("description"),
		ConnectionID: r.FormValue("socketId"),
	}

	evidence, err := server.stageEvidence(r)
	if err != nil {
		server.fail(w, r, err)
		return
	}
	submission.Evidence = evidence

	if err := server.pipeline.Submit(currentAccount(r), submission); err != nil {
		if evidence != nil {
			_ = os.Remove(evidence.Path)
		}
		server.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Report received and is being processed"})
}

func (server *Server) stageEvidence(r *http.Request) (*Evidence, error) {
	file, header, err := r.FormFile("evidence")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, invalid("evidence", "could not be read")
	}
	defer func() { _ = file.Close() }()

	if server.cfg.Blob.MaxSize > 0 && header.Size > server.cfg.Blob.MaxSize {
		return nil, invalid("evidence", "is too large")
	}

	staged, err := os.CreateTemp(server.cfg.Blob.StagingDir, "evidence-*"+filepath.Ext(header.Filename))
	if err != nil {
		return nil, err
	}

	if _, err := io.Copy(staged, file); err != nil {
		_ = staged.Close()
		_ = os.Remove(staged.Name())
		return nil, err
	}
	if err := staged.Close(); err != nil {
		_ = os.Remove(staged.Name())
		return nil, err
	}

	return &Evidence{
		Path:        staged.Name(),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	}, nil
}

func (server *Server) listReports(w http.ResponseWriter, r *http.Request) {
	filter := database.ReportFilter{
		Query:      r.URL.Query().Get("query"),
		ReporterID: currentAccount(r).ID,
	}

	reports, err := server.moderator.Reports(r.Context(), filter)
	if err != nil {
		server.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReportViews(reports))
}

func (server *Server) adminReports(w http.ResponseWriter, r *http.Request) {
	var status database.ReportStatus
	switch value := r.URL.Query().Get("status"); value {
	case "", "all":
		status = database.ReportStatusAll
	case string(database.ReportStatusPending), string(database.ReportStatusApproved):
		status = database.ReportStatus(value)
	default:
		writeError(w, invalid("status", "must be pending, approved or all"))
		return
	}

	reports, err := server.moderator.Reports(r.Context(), database.ReportFilter{Status: status})
	if err != nil {
		server.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReportViews(reports))
}

func (server *Server) approveReport(w http.ResponseWriter, r *http.Request) {
	report, err := server.moderator.Approve(r.Context(), pathID(r))
	if err != nil {
		server.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReportView(*report))
}

func (server *Server) rejectReport(w http.ResponseWriter, r *http.Request) {
	report, err := server.moderator.Reject(r.Context(), pathID(r))
	if err != nil {
		server.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReportView(*report))
}

func (server *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := server.accounts.Accounts(r.Context())
	if err != nil {
		server.fail(w, r, err)
		return
	}

	views := make([]accountView, 0, len(accounts))
	for _, account := range accounts {
		views = append(views, newAccountView(account))
	}
	writeJSON(w, http.StatusOK, views)
}

func (server *Server) approveAccount(w http.ResponseWriter, r *http.Request) {
	account, err := server.accounts.Approve(r.Context(), pathID(r))
	if err != nil {
		server.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountView(*account))
}

func (server *Server) promoteAccount(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IsAdmin *bool `json:"isAdmin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.IsAdmin == nil {
		writeError(w, invalid("isAdmin", "is required"))
		return
	}

	account, err := server.accounts.SetAdmin(r.Context(), pathID(r), *body.IsAdmin)
	if err != nil {
		server.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountView(*account))
}

func (server *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	account, err := server.accounts.Delete(r.Context(), pathID(r))
	if err != nil {
		server.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountView(*account))
}

// fail logs unexpected errors before writing the mapped response.
func (server *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if statusFor(err) == http.StatusInternalServerError {
		server.log.Errorw("request failed",
			"method", r.Method,
			"url", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, err)
}

func pathID(r *http.Request) uint64 {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	return id
}

func newReportViews(reports []database.Report) []reportView {
	views := make([]reportView, 0, len(reports))
	for _, report := range reports {
		views = append(views, newReportView(report))
	}
	return views
}

func newReportView(report database.Report) reportView {
	view := reportView{
		ID:          report.ID,
		SteamID:     report.SteamID,
		SteamName:   report.SteamName,
		MatchID:     report.MatchID,
		Type:        string(report.Category),
		Description: report.Description,
		EvidenceURL: report.EvidenceURL,
		Approved:    report.Approved,
		CreatedAt:   report.CreatedAt,
	}
	if reporter := report.Reporter; reporter != nil {
		_, steamName := reporter.Identity(database.PlatformSteam)
		_, discordName := reporter.Identity(database.PlatformDiscord)
		view.Reporter = &reporterView{
			ID:          reporter.ID,
			Username:    reporter.Username,
			SteamName:   steamName,
			DiscordName: discordName,
		}
		view.HasDiscord = reporter.HasDiscord()
	}
	return view
}

func newAccountView(account database.Account) accountView {
	steamID, steamName := account.Identity(database.PlatformSteam)
	discordID, discordName := account.Identity(database.PlatformDiscord)
	return accountView{
		ID:          account.ID,
		Username:    account.Username,
		SteamID:     steamID,
		SteamName:   steamName,
		DiscordID:   discordID,
		DiscordName: discordName,
		IsAdmin:     account.IsAdmin,
		IsApproved:  account.IsApproved,
		CreatedAt:   account.CreatedAt,
	}
}
