package bitunix

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Bitunix venue error codes that mean the requested leverage/margin-mode was
// already in effect, or conflicts with a setting the account already has on
// the other axis. Neither is a reason to fail the caller: the account ends
// up in a state at least as good as requested.
const (
	errCodeAlreadySet   = 34002
	errCodeModeConflict = 10007
)

// SetLeverage sets symbol's account leverage, implementing the risk engine's
// leverage-push contract. 34002/10007 are treated as success since they report the
// account is already at (or compatible with) the requested leverage.
func (c *Client) SetLeverage(symbol string, leverage int) error {
	payload := map[string]interface{}{
		"symbol":   symbol,
		"leverage": leverage,
	}
	_, err := c.doRequest("POST", "/api/v1/futures/account/change_leverage", payload)
	if err == nil {
		return nil
	}
	if code, ok := venueCode(err); ok && (code == errCodeAlreadySet || code == errCodeModeConflict) {
		log.Warn().Str("symbol", symbol).Int("leverage", leverage).Int("code", code).
			Msg("non-fatal error setting leverage, account already compatible")
		return nil
	}
	log.Warn().Str("symbol", symbol).Int("leverage", leverage).Err(err).Msg("failed to set leverage")
	return err
}

// SetMarginMode sets symbol's margin mode ("ISOLATION" or "CROSS"). USDT is
// the only margin coin this engine trades, so marginCoin is only required
// (and only sent) for ISOLATION.
func (c *Client) SetMarginMode(symbol, mode string) error {
	payload := map[string]string{
		"symbol":     symbol,
		"marginMode": mode,
	}
	if mode == "ISOLATION" {
		payload["marginCoin"] = "USDT"
	}
	_, err := c.doRequest("POST", "/api/v1/futures/account/change_margin_mode", payload)
	if err == nil {
		return nil
	}
	if code, ok := venueCode(err); ok && (code == errCodeAlreadySet || code == errCodeModeConflict) {
		log.Warn().Str("symbol", symbol).Str("margin_mode", mode).Int("code", code).
			Msg("non-fatal error setting margin mode, account already compatible")
		return nil
	}
	log.Warn().Str("symbol", symbol).Str("margin_mode", mode).Err(err).Msg("failed to set margin mode")
	return err
}

// venueCode extracts the Bitunix response code from a doRequest
// venue_validation error, since doRequest wraps it as "venue_validation: %d %s".
func venueCode(err error) (int, bool) {
	if err == nil || !strings.Contains(err.Error(), "venue_validation") {
		return 0, false
	}
	var code int
	if _, scanErr := fmt.Sscanf(err.Error(), "venue_validation: %d", &code); scanErr != nil {
		return 0, false
	}
	return code, true
}
