package trajplot

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Run loads the data file, builds one panel per data column and either saves
// the figure or shows it, blocking until its window is closed.
func Run(ctx context.Context, config PlotConfig) error {
	logger := logrus.WithFields(logrus.Fields{
		"tag":  "PlotTrajectory",
		"data": config.DataFilepath,
	})

	table, err := LoadTableFile(ctx, config.DataFilepath, config.Relaxed)
	if err != nil {
		return err
	}

	figure, err := NewFigure(table, FigureOptions{
		TimeColumn:  config.TimeColumn,
		IncludeZero: config.IncludeZero,
		Width:       config.Width,
		PanelHeight: config.PanelHeight,
	})
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"panels":      len(figure.Panels),
		"rows":        table.NumRows(),
		"includeZero": config.IncludeZero,
	}).Info("built figure")

	if config.Output != "" {
		return figure.Save(config.Output)
	}

	viewer, err := NewViewer(figure, NewMetadata(figure, config), ViewerOptions{
		Host:        config.Host,
		Port:        config.Port,
		OpenBrowser: config.OpenBrowser,
		CloseGrace:  config.CloseGrace,
	})
	if err != nil {
		return err
	}

	return viewer.Run(ctx)
}
