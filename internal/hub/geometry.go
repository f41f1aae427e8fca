package hub

// applyViewerGeometry processes a remote viewer attach or detach against a
// session's geometry state and returns the size the pseudo-terminal should
// be resized to, or ok=false when no resize is needed.
//
// Attach moves the session to remote authority and makes the viewer's
// reported size binding. If a second viewer attaches while one is already
// authoritative, the newer viewer's size supersedes: last attach wins, no
// common size is negotiated. Detach returns authority to the local window's
// most recently measured fitted size.
func applyViewerGeometry(g *GeometryState, ev ViewerGeometryEvent) (rows, cols int, ok bool) {
	if ev.Connected {
		if ev.Rows <= 0 || ev.Cols <= 0 {
			return 0, 0, false
		}
		g.Authority = AuthorityRemote
		g.RemoteRows = ev.Rows
		g.RemoteCols = ev.Cols
		g.Rows = ev.Rows
		g.Cols = ev.Cols
		return ev.Rows, ev.Cols, true
	}

	g.Authority = AuthorityLocal
	g.RemoteRows = 0
	g.RemoteCols = 0
	if g.LocalRows <= 0 || g.LocalCols <= 0 {
		// Local size was never measured; keep the current size until
		// the next local resize arrives.
		return 0, 0, false
	}
	g.Rows = g.LocalRows
	g.Cols = g.LocalCols
	return g.LocalRows, g.LocalCols, true
}

// applyLocalSize records a newly measured local fitted size and returns the
// size to apply to the pseudo-terminal, or ok=false while a remote viewer
// holds authority. The measurement is recorded either way so detach can
// restore it.
func applyLocalSize(g *GeometryState, rows, cols int) (ok bool) {
	if rows <= 0 || cols <= 0 {
		return false
	}
	g.LocalRows = rows
	g.LocalCols = cols
	if g.Authority == AuthorityRemote {
		return false
	}
	g.Rows = rows
	g.Cols = cols
	return true
}
