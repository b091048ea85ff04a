package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/matheus3301/collab/internal/bus"
	"github.com/matheus3301/collab/internal/tui/keys"
	"github.com/matheus3301/collab/internal/tui/model"
	"github.com/matheus3301/collab/internal/tui/ui"
	"github.com/matheus3301/collab/internal/tui/views"
)

const (
	pageList = "conversations"
	pageChat = "chat"
)

// Connector is the realtime channel as seen by the shell.
type Connector interface {
	Connect(ctx context.Context) error
	Disconnect()
}

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	vm        *model.ViewModel
	conn      Connector
	bus       *bus.Bus
	logger    *zap.Logger
	registry  *keys.Registry
	theme     *ui.Theme
	statusBar *views.StatusBar
	convList  *views.ConversationList
	msgView   *views.MessageView
	composer  *views.Composer
	prompt    *ui.Prompt
	root      *tview.Flex
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(vm *model.ViewModel, c Connector, b *bus.Bus, logger *zap.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        vm,
		conn:      c,
		bus:       b,
		logger:    logger,
		registry:  keys.NewRegistry(),
		theme:     theme,
		statusBar: views.NewStatusBar(theme),
		convList:  views.NewConversationList(theme),
		msgView:   views.NewMessageView(theme, vm.Self()),
		composer:  views.NewComposer(),
		prompt:    ui.NewPrompt(theme),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetUser(vm.Self())
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q',
		Description: "q:quit",
		Handler:     a.Stop,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: ':',
		Description: ":cmd",
		Handler:     func() { a.showPrompt(ui.PromptCommand) },
	})
	a.registry.AddPage(pageList, &keys.Action{
		Key: tcell.KeyRune, Rune: '/',
		Description: "/:filter",
		Handler:     func() { a.showPrompt(ui.PromptFilter) },
	})
	a.registry.AddPage(pageList, &keys.Action{
		Key: tcell.KeyRune, Rune: 'r',
		Description: "r:refresh",
		Handler:     a.refreshConversations,
	})
	a.registry.AddPage(pageChat, &keys.Action{
		Key: tcell.KeyRune, Rune: 'i',
		Description: "i:write",
		Handler:     func() { a.app.SetFocus(a.composer.InputField) },
	})
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(row, col int) {
		if peer := a.convList.Selected(); peer != "" {
			a.openChat(peer)
		}
	})

	a.composer.SetOnTyping(a.vm.Typing)
	a.composer.SetOnSend(func(text string) {
		go func() {
			if err := a.vm.Send(a.ctx, text); err != nil {
				a.vm.Flash.Set("Send failed: "+err.Error(), 5*time.Second)
			}
			a.app.QueueUpdateDraw(a.render)
		}()
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		if mode == ui.PromptFilter {
			a.convList.SetFilter(text)
			return
		}
		a.runCommand(text)
	})
	a.prompt.SetOnCancel(func() {
		if a.prompt.Mode() == ui.PromptFilter {
			a.convList.SetFilter("")
		}
		a.hidePrompt()
	})
}

func (a *App) setupLayout() {
	chatFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage(pageList, a.convList, true, true)
	a.pages.AddPage(pageChat, chatFlex, true, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(a.root, true)
	a.statusBar.SetHints(a.registry.Hints(pageList))

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		// Let text input widgets handle all keys normally.
		if _, ok := a.app.GetFocus().(*tview.InputField); ok {
			if event.Key() == tcell.KeyEscape && a.app.GetFocus() == a.composer.InputField {
				a.app.SetFocus(a.msgView)
				return nil
			}
			return event
		}

		if event.Key() == tcell.KeyEscape && currentPage == pageChat {
			a.closeChat()
			return nil
		}

		if a.registry.HandleEvent(currentPage, event) {
			return nil
		}
		return event
	})
}

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.root.AddItem(a.prompt, 3, 0, false)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.root.RemoveItem(a.prompt)
	if page, _ := a.pages.GetFrontPage(); page == pageChat {
		a.app.SetFocus(a.msgView)
		return
	}
	a.app.SetFocus(a.convList)
}

func (a *App) runCommand(text string) {
	cmd, err := ParseCommand(text)
	if err != nil {
		a.statusBar.SetFlash(err.Error())
		return
	}
	switch cmd.Name {
	case CmdOpen:
		a.openChat(cmd.Args)
	case CmdClose:
		a.closeChat()
	case CmdRefresh:
		a.refreshConversations()
	case CmdQuit:
		a.Stop()
	}
}

func (a *App) openChat(peer string) {
	go func() {
		if err := a.vm.Open(a.ctx, peer); err != nil {
			a.logger.Warn("open conversation", zap.String("peer", peer), zap.Error(err))
			a.vm.Flash.Set(err.Error(), 5*time.Second)
			if a.vm.ActivePeer() != peer {
				a.app.QueueUpdateDraw(a.render)
				return
			}
		}
		a.app.QueueUpdateDraw(func() {
			a.pages.SwitchToPage(pageChat)
			a.statusBar.SetHints(a.registry.Hints(pageChat))
			a.app.SetFocus(a.composer.InputField)
			a.render()
		})
	}()
}

func (a *App) closeChat() {
	a.vm.CloseThread()
	a.pages.SwitchToPage(pageList)
	a.statusBar.SetHints(a.registry.Hints(pageList))
	a.app.SetFocus(a.convList)
	a.refreshConversations()
}

func (a *App) refreshConversations() {
	go func() {
		if err := a.vm.LoadConversations(a.ctx); err != nil {
			a.vm.Flash.Set("Conversations unavailable: "+err.Error(), 5*time.Second)
		}
		a.app.QueueUpdateDraw(a.render)
	}()
}

// render copies the view model into the widgets. Must run on the tview goroutine.
func (a *App) render() {
	a.convList.Update(a.vm.Summaries())
	if peer := a.vm.ActivePeer(); peer != "" {
		a.msgView.SetPeer(peer, a.vm.PeerTyping())
		a.msgView.Update(a.vm.Messages())
	}
	a.statusBar.SetState(a.vm.ConnState())
	a.statusBar.SetFlash(a.vm.Flash.Get())
}

// watch folds bus events into the view model until the app stops.
func (a *App) watch() {
	events, unsub := a.bus.Subscribe("", 256)
	defer unsub()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case evt := <-events:
			if a.vm.Apply(evt) {
				a.app.QueueUpdateDraw(a.render)
			}
		case <-ticker.C:
			// Expire flash messages.
			a.app.QueueUpdateDraw(func() { a.statusBar.SetFlash(a.vm.Flash.Get()) })
		case <-a.ctx.Done():
			return
		}
	}
}

// Run connects the realtime channel and blocks until the user quits.
func (a *App) Run() error {
	go a.watch()
	go func() {
		if err := a.conn.Connect(a.ctx); err != nil {
			a.logger.Warn("connect", zap.Error(err))
			a.vm.Flash.Set("Offline: "+err.Error(), 10*time.Second)
			a.app.QueueUpdateDraw(a.render)
		}
	}()
	a.refreshConversations()

	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.vm.CloseThread()
	a.conn.Disconnect()
	a.app.Stop()
}
