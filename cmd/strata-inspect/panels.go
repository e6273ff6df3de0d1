package main

import (
	"fmt"

	"github.com/AllenDang/cimgui-go/imgui"
)

var (
	colorOK   = imgui.NewVec4(0.4, 0.8, 0.4, 1)
	colorWarn = imgui.NewVec4(1, 0.8, 0, 1)
	colorBad  = imgui.NewVec4(0.9, 0.3, 0.3, 1)
)

func (app *App) renderControls() {
	s := app.session
	if s == nil {
		imgui.TextDisabled("No session")
		return
	}
	stats := s.stats()
	r := stats.Render

	imgui.Text("Frame")
	imgui.Separator()
	imgui.Checkbox("Paused", &app.paused)
	imgui.SameLine()
	if imgui.Button("Step") {
		app.stepOnce = true
	}
	cam := s.v.Camera()
	imgui.SliderFloatV("Yaw", &cam.RotationY, -3.14, 3.14, "%.2f", imgui.SliderFlagsNone)
	imgui.SliderFloatV("Pitch", &cam.RotationX, cam.MinPitch, cam.MaxPitch, "%.2f", imgui.SliderFlagsNone)
	imgui.SliderFloatV("Distance", &cam.Distance, cam.MinDistance, cam.MaxDistance, "%.0f", imgui.SliderFlagsNone)
	imgui.SliderFloatV("Orbit", &cam.OrbitSpeed, 0, 1, "%.2f rad/s", imgui.SliderFlagsNone)
	imgui.Text(fmt.Sprintf("Center: %.1f, %.1f, %.1f", cam.CenterX, cam.CenterY, cam.CenterZ))

	imgui.Spacing()
	imgui.Text("Terrain")
	imgui.Separator()
	radius := int32(s.v.Streamer().ViewRadius())
	if imgui.SliderIntV("View radius", &radius, 0, 16, "%d chunks", imgui.SliderFlagsNone) {
		s.v.Streamer().SetViewRadius(int(radius))
	}
	imgui.Text(fmt.Sprintf("Resident chunks: %d", stats.Resident))
	imgui.Text(fmt.Sprintf("Loading: %d", stats.Pending))

	imgui.Spacing()
	imgui.Text("Buffers")
	imgui.Separator()
	imgui.Text(fmt.Sprintf("Meshes:   %d / %d", r.Meshes, r.MeshCapacity))
	imgui.Text(fmt.Sprintf("Vertices: %d / %d", r.Vertices, r.VertexCapacity))
	imgui.Text(fmt.Sprintf("Indices:  %d / %d", r.Indices, r.IndexCapacity))
	imgui.Text(fmt.Sprintf("Rebuilds: %d (%d reallocations)", r.Rebuilds, r.Reallocations))
	imgui.Text(fmt.Sprintf("Last rebuild: %s", r.LastRebuild))

	imgui.Spacing()
	imgui.Text("Culling")
	imgui.Separator()
	onOff := func(label string, on bool) {
		if on {
			imgui.TextColored(colorOK, label+": on")
		} else {
			imgui.TextColored(colorWarn, label+": off (full list)")
		}
	}
	onOff("GPU cull", r.Culling)
	onOff("Indirect count", r.IndirectCount)
	imgui.Text(fmt.Sprintf("Visible (readback): %d", stats.Visible))
	imgui.Text(fmt.Sprintf("Drawn last frame:   %d", s.drawn))
	switch {
	case s.stale:
		imgui.TextDisabled("Table changed since the frame")
	case s.mismatches > 0:
		imgui.TextColored(colorBad, fmt.Sprintf("%d meshes disagree with the CPU cull", s.mismatches))
	default:
		imgui.TextColored(colorOK, "Matches the CPU cull")
	}

	if len(s.violations) > 0 {
		imgui.Spacing()
		imgui.TextColored(colorBad, fmt.Sprintf("Device violations: %d", len(s.violations)))
		for _, v := range s.violations {
			imgui.TextWrapped(v)
		}
	}

	imgui.Spacing()
	imgui.Text("Selection")
	imgui.Separator()
	if !app.hasSelected {
		imgui.TextDisabled("Click a row to select a mesh")
		return
	}
	imgui.Text(meshLabel(app.selected))
	if imgui.ButtonV("Erase from GPU", imgui.NewVec2(-1, 0)) {
		if err := s.erase(app.selected); err != nil {
			app.lastErr = err
		} else {
			app.status = fmt.Sprintf("Erased %s until the next rebuild", meshLabel(app.selected))
		}
	}
	if imgui.ButtonV("Remove from table", imgui.NewVec2(-1, 0)) {
		if s.remove(app.selected) {
			app.status = fmt.Sprintf("Removed %s", meshLabel(app.selected))
		}
		app.hasSelected = false
	}
}

func (app *App) renderMeshTable() {
	s := app.session
	if s == nil {
		return
	}
	flags := imgui.TableFlagsBorders | imgui.TableFlagsRowBg | imgui.TableFlagsScrollY
	if !imgui.BeginTableV("meshes", 9, flags, imgui.NewVec2(0, 0), 0) {
		return
	}
	imgui.TableSetupScrollFreeze(0, 1)
	for _, h := range []string{"Slot", "Mesh", "Vertices", "Indices", "Base vertex", "First index", "Drawn", "CPU cull", "In frustum"} {
		imgui.TableSetupColumn(h)
	}
	imgui.TableHeadersRow()

	for _, row := range s.rows {
		rec := row.Record
		imgui.TableNextRow()
		imgui.TableNextColumn()
		selected := app.hasSelected && app.selected == row.ID
		label := fmt.Sprintf("%d##%d", rec.DrawIndex, row.ID)
		if imgui.SelectableBoolV(label, selected, imgui.SelectableFlagsSpanAllColumns, imgui.NewVec2(0, 0)) {
			app.selected = row.ID
			app.hasSelected = true
		}
		imgui.TableNextColumn()
		imgui.Text(row.Label)
		imgui.TableNextColumn()
		imgui.Text(fmt.Sprintf("%d", rec.VertexCount))
		imgui.TableNextColumn()
		imgui.Text(fmt.Sprintf("%d", rec.IndexCount))
		imgui.TableNextColumn()
		imgui.Text(fmt.Sprintf("%d", rec.BaseVertex))
		imgui.TableNextColumn()
		imgui.Text(fmt.Sprintf("%d", rec.FirstIndex))
		imgui.TableNextColumn()
		yesNo(row.Drawn, row.Drawn == row.Expected || s.stale)
		imgui.TableNextColumn()
		yesNo(row.Expected, true)
		imgui.TableNextColumn()
		yesNo(row.InFrustum, true)
	}
	imgui.EndTable()
}

func yesNo(v, agrees bool) {
	text := "no"
	if v {
		text = "yes"
	}
	if !agrees {
		imgui.TextColored(colorBad, text)
		return
	}
	imgui.Text(text)
}

func (app *App) renderStatusBar() {
	if app.lastErr != nil {
		imgui.TextColored(colorBad, "Error: "+app.lastErr.Error())
		imgui.SameLine()
		if imgui.SmallButton("Dismiss") {
			app.lastErr = nil
		}
		return
	}
	if app.status != "" {
		imgui.Text(app.status)
		return
	}
	if s := app.session; s != nil {
		imgui.TextDisabled(fmt.Sprintf("%d meshes, %d drawn", len(s.rows), s.drawn))
	}
}
