// Package pagination drives a sequential crawl over a numbered archive.
//
// Archive pages are addressed as <prefix><N><suffix>. The crawler requests
// pages one at a time starting at StartPage, waits PageDelay between pages,
// and stops when:
//   - a page reports the end of the archive (HTTP 404 or a not-found page)
//   - MaxConsecutiveFailures attempts in a row fail or yield no records
//   - MaxPages attempts have been made (when set)
//   - the context is cancelled
//
// Example usage:
//
//	config := pagination.DefaultConfig()
//	config.BaseURLPrefix = "http://opinion.people.com.cn/GB/8213/353915/353916/index"
//	crawler := pagination.NewCrawler(pageAdapter, config)
//	result, err := crawler.Run(ctx)
//
// Records are returned in page order, each page's records in extraction order.
// A page attempt never fails the run; only cancellation is returned as an error,
// together with the partial result.
package pagination
