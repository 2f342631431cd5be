package commands

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/folio/internal/app"
	"github.com/florianilch/folio/internal/library"
)

// maxListPages bounds cursor following for list --all.
const maxListPages = 100

func listCommand(run func(appAction) cli.ActionFunc) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list documents in the library",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "full-text filter"},
			&cli.StringFlag{Name: "category", Usage: "only documents in this category"},
			&cli.StringFlag{Name: "tag", Usage: "only documents with this tag"},
			&cli.StringFlag{Name: "sort", Usage: "sort order understood by the backend"},
			&cli.StringFlag{Name: "cursor", Usage: "continue from a previous page"},
			&cli.BoolFlag{Name: "all", Usage: "follow cursors until the last page"},
		},
		Action: run(listAction),
	}
}

func listAction(ctx context.Context, cmd *cli.Command, application *app.App) error {
	q := library.ListQuery{
		Cursor:   cmd.String("cursor"),
		Query:    cmd.String("query"),
		Category: cmd.String("category"),
		Tag:      cmd.String("tag"),
		Sort:     cmd.String("sort"),
	}

	var items []library.PDF
	for range maxListPages {
		page, err := application.Library().ListPDFs(ctx, q)
		if err != nil {
			return err
		}
		items = append(items, page.Items...)
		q.Cursor = page.NextCursor
		if q.Cursor == "" || !cmd.Bool("all") {
			break
		}
	}

	w := cmd.Root().Writer
	if len(items) == 0 {
		return renderNote(w, "No documents found.")
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.ID,
			item.Title,
			strconv.Itoa(item.Pages),
			item.Category,
			strings.Join(item.Tags, ", "),
			item.UpdatedAt.Local().Format(time.DateOnly),
		})
	}
	if err := renderTable(w, []string{"ID", "TITLE", "PAGES", "CATEGORY", "TAGS", "UPDATED"}, rows); err != nil {
		return err
	}
	if q.Cursor != "" {
		return renderNote(w, "More results: --cursor %s", q.Cursor)
	}
	return nil
}

func showCommand(run func(appAction) cli.ActionFunc) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "show a document",
		ArgsUsage: "<id>",
		Action:    run(showAction),
	}
}

func showAction(ctx context.Context, cmd *cli.Command, application *app.App) error {
	id, err := requireArg(cmd, 0, "id")
	if err != nil {
		return err
	}

	doc, err := application.Library().GetPDF(ctx, id)
	if err != nil {
		return err
	}

	static := 0
	for _, u := range doc.PageURLs {
		if u != "" {
			static++
		}
	}

	return renderDetails(cmd.Root().Writer, [][2]string{
		{"ID", doc.ID},
		{"Title", doc.Title},
		{"Author", doc.Author},
		{"Pages", strconv.Itoa(doc.Pages)},
		{"Category", doc.Category},
		{"Tags", strings.Join(doc.Tags, ", ")},
		{"Updated", doc.UpdatedAt.Local().Format(time.DateTime)},
		{"Cover", doc.CoverURL},
		{"Static pages", strconv.Itoa(static)},
		{"Description", doc.Description},
	})
}

func searchCommand(run func(appAction) cli.ActionFunc) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "search inside a document",
		ArgsUsage: "<id> <query>",
		Action:    run(searchAction),
	}
}

func searchAction(ctx context.Context, cmd *cli.Command, application *app.App) error {
	id, err := requireArg(cmd, 0, "id")
	if err != nil {
		return err
	}
	query, err := requireArg(cmd, 1, "query")
	if err != nil {
		return err
	}

	res, err := application.Library().Search(ctx, id, query)
	if err != nil {
		return err
	}

	w := cmd.Root().Writer
	if len(res.Hits) == 0 {
		return renderNote(w, "No matches.")
	}
	rows := make([][]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		rows = append(rows, []string{strconv.Itoa(hit.Page), hit.Snippet})
	}
	return renderTable(w, []string{"PAGE", "SNIPPET"}, rows)
}

func pagesCommand(run func(appAction) cli.ActionFunc) *cli.Command {
	return &cli.Command{
		Name:      "pages",
		Usage:     "print image URLs for a range of pages",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "from", Usage: "first page", Value: 1},
			&cli.IntFlag{Name: "to", Usage: "last page (defaults to --from)"},
			&cli.FloatFlag{Name: "width", Usage: "requested image width in pixels"},
			&cli.FloatFlag{Name: "height", Usage: "requested image height in pixels"},
			&cli.FloatFlag{Name: "dpr", Usage: "device pixel ratio"},
			&cli.FloatFlag{Name: "quality", Usage: "image quality (1-100)"},
		},
		Action: run(pagesAction),
	}
}

func pagesAction(ctx context.Context, cmd *cli.Command, application *app.App) error {
	id, err := requireArg(cmd, 0, "id")
	if err != nil {
		return err
	}

	doc, err := application.Library().GetPDF(ctx, id)
	if err != nil {
		return err
	}

	rd := application.Reader()
	if err := rd.Open(doc); err != nil {
		return err
	}
	defer rd.Close()

	from := min(max(cmd.Int("from"), 1), doc.Pages)
	to := cmd.Int("to")
	if to == 0 {
		to = from
	}
	to = min(max(to, from), doc.Pages)

	pages := make([]int, 0, to-from+1)
	for p := from; p <= to; p++ {
		pages = append(pages, p)
	}

	hints := library.RenderHints{
		Width:   cmd.Float("width"),
		Height:  cmd.Float("height"),
		DPR:     cmd.Float("dpr"),
		Quality: cmd.Float("quality"),
	}
	if err := rd.Prefetch(ctx, pages, hints); err != nil {
		return err
	}

	rows := make([][]string, 0, len(pages))
	for _, p := range pages {
		url, err := rd.Resolve(ctx, p, hints)
		if err != nil {
			return err
		}
		entry, _ := rd.Entry(p, hints)
		rows = append(rows, []string{strconv.Itoa(p), url, formatTime(entry.ExpiresAt)})
	}
	return renderTable(cmd.Root().Writer, []string{"PAGE", "URL", "EXPIRES"}, rows)
}

func requireArg(cmd *cli.Command, i int, name string) (string, error) {
	v := strings.TrimSpace(cmd.Args().Get(i))
	if v == "" {
		return "", errors.New("missing argument <" + name + ">")
	}
	return v, nil
}

