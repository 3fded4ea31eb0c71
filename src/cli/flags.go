package cli

func (c *RootCommand) initFlags() {
	c.PersistentFlags().StringVarP(
		&c.Options.ConfigPath,
		"config",
		"c",
		"",
		"Directory holding the .env configuration file",
	)
	c.PersistentFlags().BoolVar(
		&c.Options.JSON,
		"json",
		false,
		"Print results as JSON",
	)
}
