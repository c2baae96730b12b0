package axe

// The engine is an opaque script blob with an in-page API; everything below
// is the glue that injects it and calls into it. Scripts are function
// expressions executed through Driver.Execute with JSON-serialized args.

const (
	// allowedOrigins value that whitelists all cross-origin frame messaging,
	// required for cross-frame partial runs.
	allOrigins = "<unsafe_all_origins>"

	brandingApplication = "axedrive"
)

// probeScript reports whether the injected engine supports partial runs.
const probeScript = `() => {
	return typeof window.axe !== 'undefined' &&
		typeof window.axe.runPartial === 'function';
}`

// frameContextsScript asks the engine which child frames are still in scope
// for the given context. The engine applies its own inclusion semantics;
// nothing is re-derived locally.
const frameContextsScript = `(context) => {
	return window.axe.utils.getFrameContexts(context || document);
}`

// runPartialScript produces one partial result for the current frame.
const runPartialScript = `(context, options) => {
	return window.axe.runPartial(context || document, options);
}`

// finishRunScript merges partial results. It runs in the isolated window,
// where the engine has just been re-injected.
const finishRunScript = `(options, partials) => {
	return window.axe.finishRun(partials, options);
}`

// legacyRunScript is the single-shot whole-document analysis.
const legacyRunScript = `(context, options) => {
	return window.axe.run(context || document, options);
}`

// composedScript is the engine source plus its configuration call. Without
// legacy mode the configuration whitelists all cross-origin messaging; with
// it, no whitelist is added and cross-origin frames are silently out of
// reach for the engine's own run.
func composedScript(source string, legacy bool) string {
	cfg := `window.axe.configure({branding:{application:'` + brandingApplication + `'}});`
	if !legacy {
		cfg = `window.axe.configure({allowedOrigins:['` + allOrigins + `'],branding:{application:'` + brandingApplication + `'}});`
	}
	return "() => {\n" + source + "\n;" + cfg + "\n}"
}
