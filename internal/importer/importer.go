// Package importer turns URLs into stored File entities.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/blob"
	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/logging"
	"github.com/dmitrijs2005/extmedia/internal/models"
	"github.com/dmitrijs2005/extmedia/internal/protocols"
	"github.com/dmitrijs2005/extmedia/internal/repositories/files"
)

// Journal is the event sink the importer reports to.
type Journal interface {
	protocols.Journal
	Error(ctx context.Context, msg, url string)
}

// Queuer defers an import until the next queue drain.
type Queuer interface {
	Enqueue(ctx context.Context, url string, op models.Operation, opts models.QueueOptions) (*models.QueueEntry, error)
}

// Sealer encrypts the logins kept with imported files.
type Sealer interface {
	Encrypt(plaintext string) (string, error)
}

type Importer struct {
	registry *protocols.Registry
	files    files.Repository
	blob     *blob.Storage
	policy   *Policy
	journal  Journal
	queue    Queuer
	cipher   Sealer
	now      func() time.Time
}

func New(registry *protocols.Registry, files files.Repository, blob *blob.Storage, policy *Policy, journal Journal) *Importer {
	return &Importer{
		registry: registry,
		files:    files,
		blob:     blob,
		policy:   policy,
		journal:  journal,
		now:      time.Now,
	}
}

// SetQueue enables ImportOptions.Queue. Without a queue the flag is ignored
// and URLs are imported immediately.
func (e *Importer) SetQueue(q Queuer) {
	e.queue = q
}

// SetCipher makes the importer keep an import login with each file it
// creates, encrypted, so availability checks can authenticate later.
func (e *Importer) SetCipher(c Sealer) {
	e.cipher = c
}

// storageError marks failures of blob or file persistence. They abort the
// call instead of failing a single URL.
type storageError struct{ err error }

func (e *storageError) Error() string { return e.err.Error() }
func (e *storageError) Unwrap() error { return e.err }

func isStorage(err error) bool {
	var se *storageError
	return errors.As(err, &se)
}

func validate(rawURL string, opts models.ImportOptions) error {
	if rawURL == "" {
		return common.ErrNoURLs
	}
	if opts.RequiresLogin && opts.Login.Empty() {
		return common.ErrNoCredentials
	}
	return nil
}

// AddURLs imports every URL. The report succeeds when at least one URL was
// imported; a failing URL never stops its siblings. The returned error is
// reserved for storage failures, after which the remaining URLs are skipped.
func (e *Importer) AddURLs(ctx context.Context, urls []string, opts models.ImportOptions) (*models.ImportReport, error) {
	report := &models.ImportReport{}

	var clean []string
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			clean = append(clean, u)
		}
	}

	err := common.ErrNoURLs
	if len(clean) > 0 {
		err = validate(clean[0], opts)
	}
	if err != nil {
		e.reject(ctx, "", err)
		for _, u := range clean {
			report.Results = append(report.Results, models.URLResult{URL: u, Title: u, Reason: common.Reason(err)})
		}
		if len(clean) == 0 {
			report.Results = append(report.Results, models.URLResult{Reason: common.Reason(err)})
		}
		return report, nil
	}

	imported := 0
	for _, u := range clean {
		res, err := e.AddURL(ctx, u, opts)
		report.Results = append(report.Results, res)
		if err != nil {
			return report, err
		}
		if res.OK {
			imported++
		}
	}
	report.Success = imported > 0

	e.journal.Info(ctx, logging.LevelNormal, fmt.Sprintf("batch finished: %d of %d urls succeeded", imported, len(clean)), "")
	return report, nil
}

// AddURL resolves rawURL and stores one File per resolved entry. The result
// is OK when at least one File was created (or the URL was queued).
func (e *Importer) AddURL(ctx context.Context, rawURL string, opts models.ImportOptions) (models.URLResult, error) {
	rawURL = strings.TrimSpace(rawURL)
	res := models.URLResult{URL: rawURL, Title: rawURL}

	if err := validate(rawURL, opts); err != nil {
		e.reject(ctx, rawURL, err)
		res.Reason = common.Reason(err)
		return res, nil
	}

	if opts.Queue && e.queue != nil {
		return e.enqueue(ctx, res, opts)
	}

	h, err := e.registry.Resolve(rawURL)
	if err != nil {
		return e.fail(ctx, res, err), nil
	}
	if !h.CheckURL(rawURL) {
		return e.fail(ctx, res, common.ErrInvalidURL), nil
	}
	e.journal.Info(ctx, logging.LevelDetailed, "resolving with "+h.Name(), rawURL)

	infos, err := h.URLInfos(ctx, rawURL, opts.Login)
	if err != nil {
		return e.fail(ctx, res, err), nil
	}

	allowed := e.policy.AllowedMimeTypes()
	saveLocal := h.ShouldBeSavedLocal() || e.policy.AlwaysDownload()

	var firstErr error
	for _, info := range infos {
		f, err := e.importOne(ctx, h, info, opts, allowed, saveLocal)
		if isStorage(err) {
			e.journal.Error(ctx, "storage failure: "+err.Error(), info.URL)
			res.Reason = common.Reason(err)
			return res, err
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if res.Imported == 0 {
			res.FileID = f.ID
			res.Title = f.Title
		}
		res.Imported++
	}

	if res.Imported == 0 {
		if firstErr == nil {
			firstErr = common.ErrNoFilesFound
		}
		res.Reason = common.Reason(firstErr)
		return res, nil
	}
	if res.Imported > 1 {
		res.Title = fmt.Sprintf("%s (%d files)", rawURL, res.Imported)
	}
	res.OK = true
	return res, nil
}

// importOne checks the mime type, caches the content when required and
// persists the File. Every per-file failure is journaled here.
func (e *Importer) importOne(ctx context.Context, h protocols.Handler, info models.FileInfo, opts models.ImportOptions, allowed []string, saveLocal bool) (*models.File, error) {
	if !mimeIn(allowed, info.MimeType) {
		e.discard(info)
		err := fmt.Errorf("%w: %s", common.ErrMimeNotAllowed, info.MimeType)
		e.journal.Warning(ctx, logging.LevelEssential, err.Error(), info.URL)
		return nil, err
	}

	now := e.now().UTC()
	f := &models.File{
		URL:       info.URL,
		Title:     info.Title,
		MimeType:  info.MimeType,
		Size:      info.Size,
		Available: true,
		TermID:    opts.TermID,
		CheckedAt: now,
		CreatedAt: now,
	}

	if saveLocal {
		p, n, err := e.save(ctx, h, info, opts.Login, now)
		if err != nil {
			if !isStorage(err) {
				e.journal.Error(ctx, "download failed: "+err.Error(), info.URL)
			}
			return nil, err
		}
		f.SavedLocally = true
		f.LocalPath = p
		if f.Size == 0 {
			f.Size = n
		}
	} else {
		e.discard(info)
	}

	if err := e.files.Create(ctx, f); err != nil {
		if f.SavedLocally {
			_ = e.blob.Delete(f.LocalPath)
		}
		if errors.Is(err, common.ErrDuplicate) {
			e.journal.Warning(ctx, logging.LevelEssential, "duplicate url skipped", info.URL)
			return nil, err
		}
		return nil, &storageError{fmt.Errorf("create file: %w", err)}
	}

	if e.cipher != nil && !opts.Login.Empty() {
		e.keepLogin(ctx, f, opts.Login)
	}

	e.journal.Info(ctx, logging.LevelNormal, "imported "+f.Title, f.URL)
	return f, nil
}

// keepLogin stores login under common.MetaLogin. A failure only costs later
// authenticated checks, so it is journaled and not returned.
func (e *Importer) keepLogin(ctx context.Context, f *models.File, login *models.Login) {
	raw, err := json.Marshal(login)
	if err == nil {
		defer common.WipeByteArray(raw)
		var ct string
		if ct, err = e.cipher.Encrypt(string(raw)); err == nil {
			err = e.files.SetMeta(ctx, f.ID, common.MetaLogin, ct)
		}
	}
	if err != nil {
		e.journal.Warning(ctx, logging.LevelNormal, "login not kept: "+err.Error(), f.URL)
	}
}

// save places the content under a new media path, moving a staged copy when
// the handler left one.
func (e *Importer) save(ctx context.Context, h protocols.Handler, info models.FileInfo, login *models.Login, now time.Time) (string, int64, error) {
	dst := blob.MediaPath(now, info.Title)

	if info.Staged && info.TempPath != "" {
		if err := e.blob.Rename(info.TempPath, dst); err != nil {
			return "", 0, &storageError{fmt.Errorf("move staged copy: %w", err)}
		}
		n, err := e.blob.Size(dst)
		if err != nil {
			return "", 0, &storageError{err}
		}
		return dst, n, nil
	}

	rc, err := h.Open(ctx, info.URL, login)
	if err != nil {
		return "", 0, err
	}
	defer rc.Close()

	src := &sourceReader{r: rc}
	n, err := e.blob.WriteFrom(dst, src, 0)
	if err != nil {
		if src.err != nil {
			return "", 0, src.err
		}
		return "", 0, &storageError{fmt.Errorf("write %s: %w", dst, err)}
	}
	return dst, n, nil
}

// discard drops a staged copy that will not be kept.
func (e *Importer) discard(info models.FileInfo) {
	if info.Staged && info.TempPath != "" {
		_ = e.blob.Delete(info.TempPath)
	}
}

func (e *Importer) enqueue(ctx context.Context, res models.URLResult, opts models.ImportOptions) (models.URLResult, error) {
	opts.Queue = false
	entry, err := e.queue.Enqueue(ctx, res.URL, models.OperationImport, models.QueueOptions{Import: opts})
	if err != nil {
		res.Reason = common.Reason(err)
		return res, fmt.Errorf("enqueue: %w", err)
	}
	e.journal.Info(ctx, logging.LevelNormal, fmt.Sprintf("queued as entry %d", entry.ID), res.URL)
	res.OK = true
	res.Reason = "Queued"
	return res, nil
}

// reject journals an input error.
func (e *Importer) reject(ctx context.Context, rawURL string, err error) {
	e.journal.Warning(ctx, logging.LevelEssential, "import rejected: "+common.Reason(err), rawURL)
}

// fail journals a per-URL failure and returns the failed result. Duplicates
// are already journaled by the handler.
func (e *Importer) fail(ctx context.Context, res models.URLResult, err error) models.URLResult {
	switch {
	case errors.Is(err, common.ErrDuplicate):
	case errors.Is(err, common.ErrInvalidURL), errors.Is(err, common.ErrNoFilesFound):
		e.journal.Warning(ctx, logging.LevelEssential, err.Error(), res.URL)
	default:
		e.journal.Error(ctx, "import failed: "+err.Error(), res.URL)
	}
	res.Reason = common.Reason(err)
	return res
}

// sourceReader remembers read errors so a failed copy can be told apart
// from a failed write.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}
