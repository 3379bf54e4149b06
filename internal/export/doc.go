// Package export turns conversations into xlsx workbooks on a coalescing
// schedule.
//
// # Scheduling
//
// Exports are requested constantly (after every survey answer and on
// conversation start and finish) but must never slow down message relay.
// Scheduler.Schedule is fire-and-forget: at most one export per
// conversation runs at a time, and any requests arriving mid-run collapse
// into a single follow-up carrying the latest tag. Export failures are
// logged and swallowed.
//
// # Artifacts
//
// Each workbook has three sheets: Session (identity and survey summary),
// Survey (questions paired with answers), Messages (the relay log).
//
// File naming by tag:
//
//   - live: live_<client>_<conversation>_<unix>.xlsx, rolling snapshots
//     trimmed to the retention caps
//   - start, end, survey: <tag>_<client>_<conversation>.xlsx, one stable
//     file overwritten in place
//
// When delivery is enabled the finished workbook is also sent into the
// client's forum topic as a document.
package export
