package http

import (
	"github.com/go-chi/chi/v5"

	"kitpack/barcodes"
	"kitpack/bom"
	"kitpack/boxes"
	"kitpack/scans"
)

// RegisterAPIRoutes wires every API endpoint.
func (s *Server) RegisterAPIRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Route("/kits", func(r chi.Router) {
			r.Get("/", bom.KitsQueryHandler(s.DB))
			r.Post("/", bom.CreateKitCommandHandler(s.DB, s.Audit))
			r.Get("/{kitID}/requirements", bom.KitRequirementsQueryHandler(s.DB))
			r.Post("/{kitID}/components", bom.AddKitComponentCommandHandler(s.DB, s.Audit))
			r.Put("/{kitID}/components/{componentID}", bom.UpdateKitComponentCommandHandler(s.DB, s.Audit))
			r.Delete("/{kitID}/components/{componentID}", bom.RemoveKitComponentCommandHandler(s.DB, s.Audit))
		})

		r.Route("/barcodes", func(r chi.Router) {
			r.Post("/generate", barcodes.GenerateCommandHandler(s.DB, s.Audit))
			r.Post("/preview-scan", barcodes.PreviewScanQueryHandler(s.DB))
			r.Post("/scan", barcodes.ScanCommandHandler(s.DB, s.Audit, s.Metrics))
			r.Post("/unscan", barcodes.UnscanCommandHandler(s.DB, s.Audit, s.Metrics))
			r.Get("/scanned-not-boxed", barcodes.ScannedNotBoxedQueryHandler(s.DB))
		})

		r.Route("/boxes", func(r chi.Router) {
			r.Post("/start", boxes.StartBoxCommandHandler(s.Coordinator))
			r.Post("/scan", boxes.ScanItemCommandHandler(s.Coordinator))
			r.Post("/remove-item", boxes.RemoveItemCommandHandler(s.Coordinator))
			r.Post("/complete", boxes.CompleteBoxCommandHandler(s.Coordinator))
			r.Get("/status", boxes.BoxStatusQueryHandler(s.Coordinator))
		})

		r.Post("/scans", scans.SubmitBatchCommandHandler(s.DB, s.Audit, s.Metrics))
		r.Get("/scans", scans.RecentScansQueryHandler(s.DB))
	})
}
