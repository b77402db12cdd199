package daemonsrv

import (
	"context"
	"io"
	"net/http"
	"time"

	"h2mux/internal/version"
)

const updatePollInterval = time.Hour

// updateLoop polls cfg.UpdateCheckURL hourly for a plain-text version
// string and caches the parsed comparison result. A disabled or failing
// check leaves the previously cached state unchanged (§4.6, §7).
func (d *Daemon) updateLoop(ctx context.Context) {
	d.checkForUpdate(ctx)

	ticker := time.NewTicker(updatePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.checkForUpdate(ctx)
		}
	}
}

func (d *Daemon) checkForUpdate(ctx context.Context) {
	url := d.config().UpdateCheckURL
	if url == "" {
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		d.log.Debug().Err(err).Msg("update check request build failed")
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		d.log.Debug().Err(err).Msg("update check request failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		d.log.Debug().Int("status", resp.StatusCode).Msg("update check non-200 response")
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		d.log.Debug().Err(err).Msg("update check body read failed")
		return
	}

	latest, err := version.ParseSemVer(string(body))
	if err != nil {
		d.log.Debug().Err(err).Msg("update check returned unparseable version")
		return
	}
	current, err := version.ParseSemVer(version.Version)
	if err != nil {
		return
	}
	if latest.Compare(current) > 0 {
		s := latest.String()
		d.setLatestVersion(&s)
	}
}

func (d *Daemon) setLatestVersion(v *string) {
	d.latestMu.Lock()
	d.latestVersion = v
	d.latestMu.Unlock()
}

func (d *Daemon) getLatestVersion() *string {
	d.latestMu.Lock()
	defer d.latestMu.Unlock()
	return d.latestVersion
}
