package xerrors

// LogAttrs returns key-value pairs suitable for slog.Any/slog.Group
// attribution of a StoreError. Non-StoreErrors degrade to a single
// "error" key.
func LogAttrs(err error) map[string]any {
	if err == nil {
		return nil
	}
	se, ok := err.(*StoreError)
	if !ok {
		return map[string]any{"error": err.Error()}
	}
	attrs := map[string]any{
		"kind":      string(se.Kind),
		"message":   se.Message,
		"retryable": se.Retryable,
	}
	if se.Cause != nil {
		attrs["cause"] = se.Cause.Error()
	}
	for k, v := range se.Details {
		attrs["detail_"+k] = v
	}
	return attrs
}
