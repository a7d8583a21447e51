// Package notify delivers triggered alerts to configured channels.
//
// The Dispatcher owns a growable queue and background workers, so alert
// evaluation never blocks on delivery. Channels deliver concurrently and
// independently per alert: the webhook channel retries with exponential
// backoff, the email channel is best-effort, and one channel exhausting its
// retries never stops another.
package notify
