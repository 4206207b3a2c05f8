package trajplot

// Metadata describes a figure to viewer clients. It is served as JSON on
// /metadata and sent as the first websocket message.
type Metadata struct {
	Title        string
	DataFilepath string
	TimeColumn   string
	Panels       []string
	IncludeZero  bool
	NumRows      int
}

func NewMetadata(figure *Figure, config PlotConfig) Metadata {
	panels := make([]string, 0, len(figure.Panels))
	numRows := 0
	for _, panel := range figure.Panels {
		panels = append(panels, panel.Title)
		numRows = len(panel.Points)
	}

	title := config.Title
	if title == "" {
		title = config.DataFilepath
	}

	timeColumn := config.TimeColumn
	if timeColumn == "" {
		timeColumn = DefaultTimeColumn
	}

	return Metadata{
		Title:        title,
		DataFilepath: config.DataFilepath,
		TimeColumn:   timeColumn,
		Panels:       panels,
		IncludeZero:  config.IncludeZero,
		NumRows:      numRows,
	}
}
