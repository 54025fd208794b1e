// Package stimuli supplies the trial vocabulary for interaction trials: the
// target list every new pair shuffles and the fixed option set shown to the
// Matcher. Sets come from a built-in default or a YAML file that can be
// reloaded while the server runs; a reload only affects pairs formed after it.
package stimuli
