package hub

import "testing"

func TestViewerAttachTakesAuthority(t *testing.T) {
	g := GeometryState{Authority: AuthorityLocal, LocalRows: 50, LocalCols: 200, Rows: 50, Cols: 200}

	rows, cols, ok := applyViewerGeometry(&g, ViewerGeometryEvent{Connected: true, Rows: 40, Cols: 120})
	if !ok || rows != 40 || cols != 120 {
		t.Fatalf("attach: got (%d, %d, %v), want (40, 120, true)", rows, cols, ok)
	}
	if g.Authority != AuthorityRemote || g.Rows != 40 || g.Cols != 120 {
		t.Fatalf("unexpected geometry after attach: %+v", g)
	}
}

func TestLocalResizeIgnoredUnderRemoteAuthority(t *testing.T) {
	g := GeometryState{Authority: AuthorityLocal}
	applyViewerGeometry(&g, ViewerGeometryEvent{Connected: true, Rows: 40, Cols: 120})

	if ok := applyLocalSize(&g, 60, 220); ok {
		t.Fatalf("local resize must not apply while remote holds authority")
	}
	if g.Rows != 40 || g.Cols != 120 {
		t.Fatalf("remote size overwritten by local resize: %+v", g)
	}
	// The measurement is still recorded for restoration.
	if g.LocalRows != 60 || g.LocalCols != 220 {
		t.Fatalf("local size not recorded: %+v", g)
	}
}

func TestViewerDetachRestoresLocalSize(t *testing.T) {
	g := GeometryState{Authority: AuthorityLocal}
	applyViewerGeometry(&g, ViewerGeometryEvent{Connected: true, Rows: 40, Cols: 120})
	applyLocalSize(&g, 60, 220)

	rows, cols, ok := applyViewerGeometry(&g, ViewerGeometryEvent{Connected: false})
	if !ok || rows != 60 || cols != 220 {
		t.Fatalf("detach: got (%d, %d, %v), want (60, 220, true)", rows, cols, ok)
	}
	if g.Authority != AuthorityLocal {
		t.Fatalf("authority not restored: %+v", g)
	}

	// Local resizes apply again after detach.
	if ok := applyLocalSize(&g, 55, 210); !ok {
		t.Fatalf("local resize should apply under local authority")
	}
	if g.Rows != 55 || g.Cols != 210 {
		t.Fatalf("local resize not applied: %+v", g)
	}
}

func TestSecondViewerSupersedes(t *testing.T) {
	g := GeometryState{Authority: AuthorityLocal}
	applyViewerGeometry(&g, ViewerGeometryEvent{Connected: true, Rows: 40, Cols: 120})

	// Last attach wins; no common size is negotiated.
	rows, cols, ok := applyViewerGeometry(&g, ViewerGeometryEvent{Connected: true, Rows: 30, Cols: 90})
	if !ok || rows != 30 || cols != 90 {
		t.Fatalf("second attach: got (%d, %d, %v), want (30, 90, true)", rows, cols, ok)
	}
}

func TestViewerDetachWithoutLocalMeasurement(t *testing.T) {
	g := GeometryState{Authority: AuthorityLocal}
	applyViewerGeometry(&g, ViewerGeometryEvent{Connected: true, Rows: 40, Cols: 120})

	// No local size was ever measured; detach must not resize to 0x0.
	if _, _, ok := applyViewerGeometry(&g, ViewerGeometryEvent{Connected: false}); ok {
		t.Fatalf("detach without a measured local size must not trigger a resize")
	}
	if g.Authority != AuthorityLocal {
		t.Fatalf("authority should still return to local: %+v", g)
	}
}

func TestViewerAttachInvalidSizeIgnored(t *testing.T) {
	g := GeometryState{Authority: AuthorityLocal, Rows: 50, Cols: 200}
	if _, _, ok := applyViewerGeometry(&g, ViewerGeometryEvent{Connected: true, Rows: 0, Cols: 120}); ok {
		t.Fatalf("attach with non-positive dimensions must be ignored")
	}
	if g.Authority != AuthorityLocal {
		t.Fatalf("invalid attach changed authority: %+v", g)
	}
}
